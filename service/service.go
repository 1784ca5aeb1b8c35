package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/dilshat/bulk-sender/campaign"
	"github.com/dilshat/bulk-sender/dao"
	"github.com/dilshat/bulk-sender/event"
	"github.com/dilshat/bulk-sender/log"
	"github.com/dilshat/bulk-sender/model"
	"github.com/dilshat/bulk-sender/service/dto"
	"github.com/dilshat/bulk-sender/session"
	"github.com/dilshat/bulk-sender/upload"
	"github.com/dilshat/bulk-sender/util"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	ALL_LOGS           = "all"
	MIN_SESSION_LENGTH = 5
	CSV_TIME_FORMAT    = "2006-01-02 15:04:05"
	//outcomes waiting for the webhook, newer ones are dropped when it is full
	WEBHOOK_QUEUE = 1024
)

var ErrUnknownDevice = errors.New("unknown device")

type InvalidPayloadErr struct {
	message string
}

func (e *InvalidPayloadErr) Error() string {
	return e.message
}

func NewInvalidPayloadError(msg string) *InvalidPayloadErr {
	return &InvalidPayloadErr{message: msg}
}

// Sessions is the part of the session registry used for device management.
type Sessions interface {
	Activate(id string) error
	Remove(id string)
	Get(id string) (session.Session, bool)
}

// Campaigns is the campaign supervisor.
type Campaigns interface {
	Start(sessionId, message string, attachments []model.Attachment, contacts []model.Contact) (string, error)
	Stop(id string) error
	Resume(id string) error
	Cancel(id string) error
	Get(id string) (campaign.Snapshot, error)
	List() []campaign.Snapshot
	Stats() campaign.Stats
}

// Upload is one uploaded file.
type Upload struct {
	Name   string
	Reader io.Reader
}

type Config struct {
	LogStoreDays int
	Webhook      string
}

type Service interface {
	AddDevice(device dto.NewDevice) (dto.DeviceCreated, error)
	GetDevices() ([]dto.Device, error)
	RemoveDevice(sessionName string) error

	UploadContacts(file Upload) (dto.ContactList, error)
	UploadImages(files []Upload) (dto.ImageList, error)

	StartCampaign(request dto.NewCampaign) (dto.CampaignStarted, error)
	StopCampaign(id string) error
	ResumeCampaign(id string) error
	CancelCampaign(id string) error
	GetCampaign(id string) (dto.Campaign, error)
	GetCampaigns() ([]dto.Campaign, error)
	GetStats() campaign.Stats

	GetLogs(campaignId string) ([]dto.LogEntry, error)
	ExportLogs(campaignId string, w io.Writer) error

	// Run records delivery outcomes and purges old logs until ctx is done.
	Run(ctx context.Context) error
}

type service struct {
	sessions       Sessions
	campaigns      Campaigns
	publisher      event.Publisher
	deviceDao      dao.DeviceDao
	campaignDao    dao.CampaignDao
	deliveryLogDao dao.DeliveryLogDao
	uploads        upload.Store
	logStoreDays   int
	webhook        string
	hooks          chan event.Event
	httpClient     *http.Client
}

func NewService(sessions Sessions, campaigns Campaigns, publisher event.Publisher, deviceDao dao.DeviceDao,
	campaignDao dao.CampaignDao, deliveryLogDao dao.DeliveryLogDao, uploads upload.Store, cfg Config) Service {
	return &service{
		sessions:       sessions,
		campaigns:      campaigns,
		publisher:      publisher,
		deviceDao:      deviceDao,
		campaignDao:    campaignDao,
		deliveryLogDao: deliveryLogDao,
		uploads:        uploads,
		logStoreDays:   cfg.LogStoreDays,
		webhook:        cfg.Webhook,
		hooks:          make(chan event.Event, WEBHOOK_QUEUE),
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s service) AddDevice(device dto.NewDevice) (dto.DeviceCreated, error) {
	name := strings.TrimSpace(device.SessionName)
	if len(name) < MIN_SESSION_LENGTH {
		return dto.DeviceCreated{}, NewInvalidPayloadError(fmt.Sprintf("Session name is required and should be at least %d characters long", MIN_SESSION_LENGTH))
	}

	id, err := s.deviceDao.Create(name)
	if err != nil {
		return dto.DeviceCreated{}, err
	}

	err = s.sessions.Activate(name)
	if err != nil {
		return dto.DeviceCreated{}, err
	}

	return dto.DeviceCreated{Id: id, SessionName: name, Message: "Device session created"}, nil
}

func (s service) GetDevices() ([]dto.Device, error) {
	devices, err := s.deviceDao.GetAll()
	if err != nil {
		return nil, err
	}

	result := []dto.Device{}
	for _, d := range devices {
		device := dto.Device{
			Id:          d.Id,
			SessionName: d.SessionName,
			PhoneNumber: d.Address,
			Status:      model.DEVICE_DISCONNECTED,
			State:       session.Disconnected.String(),
			LastSeen:    d.LastSeen,
		}
		if live, ok := s.sessions.Get(d.SessionName); ok {
			device.State = live.State.String()
			device.Qr = live.Qr
			device.Reason = live.Reason
			if live.State == session.Connected {
				device.Status = model.DEVICE_CONNECTED
				device.PhoneNumber = live.AccountHandle
			}
		}
		result = append(result, device)
	}

	return result, nil
}

func (s service) RemoveDevice(sessionName string) error {
	exists, err := s.deviceDao.Exists(sessionName)
	if err != nil {
		return err
	}
	_, live := s.sessions.Get(sessionName)
	if !exists && !live {
		return ErrUnknownDevice
	}

	s.sessions.Remove(sessionName)
	return s.deviceDao.Remove(sessionName)
}

func (s service) UploadContacts(file Upload) (dto.ContactList, error) {
	contacts, err := upload.ParseContacts(file.Name, file.Reader)
	if errors.Is(err, upload.ErrUnsupportedFormat) {
		return dto.ContactList{}, NewInvalidPayloadError("Unsupported file format")
	}
	if err != nil {
		return dto.ContactList{}, NewInvalidPayloadError("Error parsing file: " + err.Error())
	}
	return dto.ContactList{Contacts: contacts, Count: len(contacts)}, nil
}

func (s service) UploadImages(files []Upload) (dto.ImageList, error) {
	if len(files) == 0 {
		return dto.ImageList{}, NewInvalidPayloadError("No images uploaded")
	}
	if len(files) > upload.MAX_IMAGES {
		return dto.ImageList{}, NewInvalidPayloadError(upload.ErrTooManyImages.Error())
	}

	images := []model.Attachment{}
	for _, f := range files {
		image, err := s.uploads.SaveImage(f.Name, f.Reader)
		if err != nil {
			return dto.ImageList{}, err
		}
		images = append(images, image)
	}
	return dto.ImageList{Images: images, Count: len(images)}, nil
}

func (s service) StartCampaign(request dto.NewCampaign) (dto.CampaignStarted, error) {
	//overall validation
	if util.IsBlank(request.DeviceSessionName) {
		return dto.CampaignStarted{}, NewInvalidPayloadError("Device session name is required")
	}
	if util.IsBlank(request.MessageText) && len(request.Images) == 0 {
		return dto.CampaignStarted{}, NewInvalidPayloadError("Message text or images are required")
	}

	attachments, err := s.resolveImages(request.Images)
	if err != nil {
		return dto.CampaignStarted{}, err
	}

	id, err := s.campaigns.Start(strings.TrimSpace(request.DeviceSessionName), request.MessageText, attachments, request.Contacts)
	if err != nil {
		return dto.CampaignStarted{}, err
	}

	return dto.CampaignStarted{CampaignId: id, Message: "Campaign started"}, nil
}

// resolveImages maps uploaded image references back to files in the upload directory.
func (s service) resolveImages(images []model.Attachment) ([]model.Attachment, error) {
	attachments := make([]model.Attachment, 0, len(images))
	for _, image := range images {
		if !strings.HasPrefix(image.Url, upload.URL_PREFIX) {
			return nil, NewInvalidPayloadError("Invalid image " + image.Url)
		}
		filename := filepath.Base(image.Url)
		path := filepath.Join(s.uploads.Dir(), filename)
		if !util.FileExists(path) {
			return nil, NewInvalidPayloadError("Unknown image " + image.Url)
		}
		if util.IsBlank(image.Name) {
			image.Name = filename
		}
		image.Url = upload.URL_PREFIX + filename
		image.Path = path
		attachments = append(attachments, image)
	}
	return attachments, nil
}

func (s service) StopCampaign(id string) error {
	return s.campaigns.Stop(id)
}

func (s service) ResumeCampaign(id string) error {
	return s.campaigns.Resume(id)
}

func (s service) CancelCampaign(id string) error {
	return s.campaigns.Cancel(id)
}

func (s service) GetCampaign(id string) (dto.Campaign, error) {
	snap, err := s.campaigns.Get(id)
	if err == nil {
		return fromSnapshot(snap), nil
	}
	if !errors.Is(err, campaign.ErrUnknownCampaign) {
		return dto.Campaign{}, err
	}

	record, err := s.campaignDao.GetOneById(id)
	if errors.Is(err, storm.ErrNotFound) {
		return dto.Campaign{}, campaign.ErrUnknownCampaign
	}
	if err != nil {
		return dto.Campaign{}, err
	}
	return fromRecord(record), nil
}

// GetCampaigns returns campaigns of earlier runs followed by the live ones, in start order.
func (s service) GetCampaigns() ([]dto.Campaign, error) {
	live := s.campaigns.List()
	known := make(map[string]bool, len(live))
	for _, snap := range live {
		known[snap.Id] = true
	}

	records, err := s.campaignDao.GetAll()
	if err != nil {
		return nil, err
	}

	result := []dto.Campaign{}
	for _, record := range records {
		if !known[record.Id] {
			result = append(result, fromRecord(record))
		}
	}
	for _, snap := range live {
		result = append(result, fromSnapshot(snap))
	}
	return result, nil
}

func (s service) GetStats() campaign.Stats {
	return s.campaigns.Stats()
}

func (s service) GetLogs(campaignId string) ([]dto.LogEntry, error) {
	logs, err := s.logs(campaignId)
	if err != nil {
		return nil, err
	}

	entries := []dto.LogEntry{}
	for _, l := range logs {
		entries = append(entries, dto.LogEntry{
			Id:            l.Id,
			CampaignId:    l.CampaignId,
			ContactNumber: l.Phone,
			ContactName:   l.Name,
			Status:        l.Status,
			SentAt:        l.SentAt,
			ErrorMessage:  l.Error,
		})
	}
	return entries, nil
}

func (s service) ExportLogs(campaignId string, w io.Writer) error {
	logs, err := s.logs(campaignId)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	err = writer.Write([]string{"Campaign ID", "Contact Number", "Status", "Sent At", "Error Message"})
	if err != nil {
		return err
	}
	for _, l := range logs {
		err = writer.Write([]string{l.CampaignId, l.Phone, l.Status, l.SentAt.Format(CSV_TIME_FORMAT), l.Error})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s service) logs(campaignId string) ([]model.DeliveryLog, error) {
	if campaignId == ALL_LOGS {
		return s.deliveryLogDao.GetAll()
	}
	return s.deliveryLogDao.GetAllByCampaignId(campaignId)
}

func (s service) Run(ctx context.Context) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc("@hourly", s.CleanupDb)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	hooksDone := make(chan struct{})
	go func() {
		defer close(hooksDone)
		s.deliverHooks(ctx)
	}()
	defer func() {
		<-hooksDone
	}()

	events := s.publisher.Subscribe(event.DeliveryOutcome, event.CampaignProgress)
	defer s.publisher.Unsubscribe(events)

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			switch e.Kind {
			case event.DeliveryOutcome:
				s.HandleDeliveryOutcome(e)
			case event.CampaignProgress:
				s.HandleProgress(e)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s service) CleanupDb() {
	err := s.deliveryLogDao.RemoveOlderThanDays(s.logStoreDays)
	if err != nil {
		zap.L().Warn("Error cleaning up delivery logs", zap.Error(err))
	}
}

func (s service) HandleDeliveryOutcome(e event.Event) {
	status := model.SENT
	if !e.Delivered() {
		status = model.FAILED
	}
	_, err := s.deliveryLogDao.Create(model.DeliveryLog{
		CampaignId: e.CampaignId,
		Phone:      e.Phone,
		Name:       e.Name,
		Status:     status,
		Error:      e.Reason,
		SentAt:     e.Time,
	})
	if err != nil {
		zap.L().Error("Error storing delivery log", zap.Error(err))
	}

	if util.IsBlank(s.webhook) {
		return
	}

	select {
	case s.hooks <- e:
	default:
		zap.L().Warn("Webhook queue is full, dropping delivery outcome",
			zap.String("campaign", e.CampaignId),
			zap.String("phone", e.Phone))
	}
}

// deliverHooks posts queued outcomes to the webhook one by one until ctx is done.
func (s service) deliverHooks(ctx context.Context) {
	for {
		select {
		case e := <-s.hooks:
			s.callWebhook(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (s service) HandleProgress(e event.Event) {
	snap, err := s.campaigns.Get(e.CampaignId)
	if err != nil {
		zap.L().Warn("Progress of unknown campaign", zap.String("campaign", e.CampaignId))
		return
	}
	log.ErrIfErr("Error saving campaign", s.campaignDao.Save(snap.Record()))
}

func (s service) callWebhook(ctx context.Context, e event.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		zap.L().Error("Error marshalling delivery outcome", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewBuffer(body))
	if err != nil {
		zap.L().Error("Error calling web hook", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		zap.L().Error("Error calling web hook", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if !(resp.StatusCode >= 200 && resp.StatusCode <= 202) {
		zap.L().Warn("Webhook returned unexpected status", zap.String("status", resp.Status))
	}
}

func fromSnapshot(snap campaign.Snapshot) dto.Campaign {
	return dto.Campaign{
		Id:                snap.Id,
		Name:              snap.Name,
		DeviceSessionName: snap.SessionId,
		MessageText:       snap.Message,
		Images:            snap.Attachments,
		Status:            snap.Status.String(),
		Reason:            snap.Reason,
		SentCount:         snap.Sent,
		FailedCount:       snap.Failed,
		Pending:           snap.Pending,
		TotalContacts:     snap.Total,
		CreatedAt:         snap.CreatedAt,
	}
}

// fromRecord shows a campaign of an earlier process run. One that was still running
// when the process stopped is reported as paused.
func fromRecord(record model.CampaignRecord) dto.Campaign {
	c := dto.Campaign{
		Id:                record.Id,
		Name:              record.Name,
		DeviceSessionName: record.SessionName,
		MessageText:       record.Text,
		Images:            record.Attachments,
		Status:            record.Status,
		SentCount:         record.Sent,
		FailedCount:       record.Failed,
		Pending:           record.Total - record.Sent - record.Failed,
		TotalContacts:     record.Total,
		CreatedAt:         record.CreatedAt,
	}
	if c.Status == campaign.Running.String() {
		c.Status = campaign.Paused.String()
		c.Reason = "interrupted by restart"
	}
	return c
}
