package upload

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dilshat/bulk-sender/model"
	"github.com/dilshat/bulk-sender/util"
	"github.com/google/uuid"
)

const (
	URL_PREFIX = "/uploads/"
	MAX_IMAGES = 10
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooManyImages     = fmt.Errorf("at most %d images per upload", MAX_IMAGES)
)

var (
	phoneColumns = []string{"phone", "number", "Phone", "Number"}
	nameColumns  = []string{"name", "Name"}
)

// ParseContacts reads a .csv file with a header row or a .txt file with one phone per line.
// Rows without a phone are skipped.
func ParseContacts(filename string, r io.Reader) ([]model.Contact, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCsv(r)
	case ".txt":
		return parseTxt(r)
	}
	return nil, ErrUnsupportedFormat
}

func parseCsv(r io.Reader) ([]model.Contact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []model.Contact{}, nil
	}
	if err != nil {
		return nil, err
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := columns[h]; !ok {
			columns[h] = i
		}
	}

	contacts := []model.Contact{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		phone := util.DigitsOnly(pick(row, columns, phoneColumns))
		if phone == "" {
			continue
		}
		contacts = append(contacts, model.Contact{Phone: phone, Name: strings.TrimSpace(pick(row, columns, nameColumns))})
	}
	return contacts, nil
}

// pick returns the first non-empty value among the candidate columns.
func pick(row []string, columns map[string]int, candidates []string) string {
	for _, c := range candidates {
		i, ok := columns[c]
		if ok && i < len(row) && strings.TrimSpace(row[i]) != "" {
			return row[i]
		}
	}
	return ""
}

func parseTxt(r io.Reader) ([]model.Contact, error) {
	contacts := []model.Contact{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		phone := util.DigitsOnly(scanner.Text())
		if phone != "" {
			contacts = append(contacts, model.Contact{Phone: phone})
		}
	}
	return contacts, scanner.Err()
}

// Store keeps uploaded images on disk, they are served under URL_PREFIX.
type Store interface {
	SaveImage(name string, r io.Reader) (model.Attachment, error)
	Dir() string
}

type store struct {
	dir string
}

func NewStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &store{dir: dir}, nil
}

func (s *store) Dir() string {
	return s.dir
}

func (s *store) SaveImage(name string, r io.Reader) (model.Attachment, error) {
	id := uuid.NewString()
	filename := id + strings.ToLower(filepath.Ext(name))
	path := filepath.Join(s.dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return model.Attachment{}, err
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return model.Attachment{}, err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(path)
		return model.Attachment{}, err
	}

	return model.Attachment{
		Id:   id,
		Name: filepath.Base(name),
		Url:  URL_PREFIX + filename,
		Path: path,
	}, nil
}
