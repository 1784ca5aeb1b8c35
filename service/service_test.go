package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/dilshat/bulk-sender/campaign"
	"github.com/dilshat/bulk-sender/event"
	"github.com/dilshat/bulk-sender/model"
	"github.com/dilshat/bulk-sender/service/dto"
	"github.com/dilshat/bulk-sender/session"
	"github.com/dilshat/bulk-sender/upload"
	"github.com/stretchr/testify/require"
)

const (
	SESSION     = "office-phone"
	ACCOUNT     = "996777123456"
	CAMPAIGN_ID = "campaign-1700000000000-abcdef"
	TEXT        = "What is up?"
	PHONE       = "996777000111"
)

var sentAt = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

type fixture struct {
	srv       *service
	sessions  *mockSessions
	campaigns *mockCampaigns
	devices   *mockDeviceDao
	records   *mockCampaignDao
	logs      *mockDeliveryLogDao
	uploadDir string
	publisher event.Publisher
}

func newFixture(t *testing.T) fixture {
	dir := t.TempDir()
	uploads, err := upload.NewStore(dir)
	require.NoError(t, err)

	f := fixture{
		sessions:  &mockSessions{live: map[string]session.Session{}},
		campaigns: &mockCampaigns{snapshots: map[string]campaign.Snapshot{}},
		devices:   &mockDeviceDao{},
		records:   &mockCampaignDao{},
		logs:      &mockDeliveryLogDao{},
		uploadDir: dir,
		publisher: event.NewPublisher(16),
	}
	t.Cleanup(f.publisher.Shutdown)
	f.srv = NewService(f.sessions, f.campaigns, f.publisher, f.devices, f.records, f.logs, uploads, Config{LogStoreDays: 7}).(*service)
	return f
}

func TestService_AddDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.srv.AddDevice(dto.NewDevice{SessionName: " abc "})

	var invalid *InvalidPayloadErr
	require.ErrorAs(t, err, &invalid)
	require.Empty(t, f.sessions.activated)

	created, err := f.srv.AddDevice(dto.NewDevice{SessionName: " " + SESSION + " "})

	require.NoError(t, err)
	require.Equal(t, SESSION, created.SessionName)
	require.Equal(t, uint32(1), created.Id)
	require.Equal(t, []string{SESSION}, f.devices.created)
	require.Equal(t, []string{SESSION}, f.sessions.activated)
}

func TestService_AddDevice_ActivationFails(t *testing.T) {
	f := newFixture(t)
	f.sessions.activateErr = errors.New("boom")

	_, err := f.srv.AddDevice(dto.NewDevice{SessionName: SESSION})

	require.Error(t, err)
}

func TestService_GetDevices(t *testing.T) {
	f := newFixture(t)
	f.devices.devices = []model.Device{
		{Id: 2, SessionName: "second-phone", Address: "old", Status: model.DEVICE_CONNECTED, LastSeen: sentAt},
		{Id: 1, SessionName: SESSION, Status: model.DEVICE_DISCONNECTED},
	}
	f.sessions.live[SESSION] = session.Session{Id: SESSION, State: session.Connected, AccountHandle: ACCOUNT}
	f.sessions.live["second-phone"] = session.Session{Id: "second-phone", State: session.AwaitingAuth, Qr: "qr-data"}

	devices, err := f.srv.GetDevices()

	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, "second-phone", devices[0].SessionName)
	require.Equal(t, model.DEVICE_DISCONNECTED, devices[0].Status)
	require.Equal(t, "awaiting_auth", devices[0].State)
	require.Equal(t, "qr-data", devices[0].Qr)
	require.Equal(t, model.DEVICE_CONNECTED, devices[1].Status)
	require.Equal(t, ACCOUNT, devices[1].PhoneNumber)
}

func TestService_RemoveDevice(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.srv.RemoveDevice(SESSION), ErrUnknownDevice)

	f.devices.devices = []model.Device{{Id: 1, SessionName: SESSION}}
	require.NoError(t, f.srv.RemoveDevice(SESSION))
	require.Equal(t, []string{SESSION}, f.sessions.removed)
	require.Equal(t, []string{SESSION}, f.devices.removed)
}

func TestService_UploadContacts(t *testing.T) {
	f := newFixture(t)

	list, err := f.srv.UploadContacts(Upload{Name: "contacts.csv", Reader: strings.NewReader("phone,name\n+996 777 000111,Ann\n")})

	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	require.Equal(t, model.Contact{Phone: PHONE, Name: "Ann"}, list.Contacts[0])

	_, err = f.srv.UploadContacts(Upload{Name: "contacts.pdf", Reader: strings.NewReader("")})
	var invalid *InvalidPayloadErr
	require.ErrorAs(t, err, &invalid)
}

func TestService_UploadImages(t *testing.T) {
	f := newFixture(t)

	_, err := f.srv.UploadImages(nil)
	var invalid *InvalidPayloadErr
	require.ErrorAs(t, err, &invalid)

	tooMany := make([]Upload, upload.MAX_IMAGES+1)
	_, err = f.srv.UploadImages(tooMany)
	require.ErrorAs(t, err, &invalid)

	list, err := f.srv.UploadImages([]Upload{
		{Name: "a.png", Reader: strings.NewReader("a")},
		{Name: "b.jpg", Reader: strings.NewReader("b")},
	})
	require.NoError(t, err)
	require.Equal(t, 2, list.Count)
	require.True(t, strings.HasPrefix(list.Images[0].Url, upload.URL_PREFIX))
	require.FileExists(t, list.Images[1].Path)
}

func TestService_StartCampaign(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.uploadDir, "img.png"), []byte("x"), 0644))
	contacts := []model.Contact{{Phone: PHONE}}

	started, err := f.srv.StartCampaign(dto.NewCampaign{
		DeviceSessionName: SESSION,
		MessageText:       TEXT,
		Contacts:          contacts,
		Images:            []model.Attachment{{Url: "/uploads/img.png", Path: "/etc/passwd"}},
	})

	require.NoError(t, err)
	require.Equal(t, CAMPAIGN_ID, started.CampaignId)
	require.Equal(t, SESSION, f.campaigns.started.sessionId)
	require.Equal(t, TEXT, f.campaigns.started.message)
	require.Equal(t, contacts, f.campaigns.started.contacts)
	require.Len(t, f.campaigns.started.attachments, 1)
	require.Equal(t, filepath.Join(f.uploadDir, "img.png"), f.campaigns.started.attachments[0].Path)
	require.Equal(t, "img.png", f.campaigns.started.attachments[0].Name)
}

func TestService_StartCampaign_Invalid(t *testing.T) {
	f := newFixture(t)
	var invalid *InvalidPayloadErr

	_, err := f.srv.StartCampaign(dto.NewCampaign{MessageText: TEXT})
	require.ErrorAs(t, err, &invalid)

	_, err = f.srv.StartCampaign(dto.NewCampaign{DeviceSessionName: SESSION, MessageText: "  "})
	require.ErrorAs(t, err, &invalid)

	_, err = f.srv.StartCampaign(dto.NewCampaign{DeviceSessionName: SESSION, Images: []model.Attachment{{Url: "/uploads/missing.png"}}})
	require.ErrorAs(t, err, &invalid)

	_, err = f.srv.StartCampaign(dto.NewCampaign{DeviceSessionName: SESSION, Images: []model.Attachment{{Url: "http://evil/x.png"}}})
	require.ErrorAs(t, err, &invalid)

	f.campaigns.startErr = campaign.ErrSessionBusy
	_, err = f.srv.StartCampaign(dto.NewCampaign{DeviceSessionName: SESSION, MessageText: TEXT})
	require.ErrorIs(t, err, campaign.ErrSessionBusy)
}

func TestService_GetCampaign(t *testing.T) {
	f := newFixture(t)
	f.campaigns.snapshots[CAMPAIGN_ID] = campaign.Snapshot{Id: CAMPAIGN_ID, SessionId: SESSION, Status: campaign.Running, Sent: 1, Total: 3, Pending: 2}
	f.records.records = []model.CampaignRecord{{Id: "old", Status: "running", Sent: 1, Failed: 1, Total: 5}}

	c, err := f.srv.GetCampaign(CAMPAIGN_ID)
	require.NoError(t, err)
	require.Equal(t, "running", c.Status)
	require.Equal(t, 2, c.Pending)

	c, err = f.srv.GetCampaign("old")
	require.NoError(t, err)
	require.Equal(t, "paused", c.Status)
	require.Equal(t, 3, c.Pending)

	_, err = f.srv.GetCampaign("missing")
	require.ErrorIs(t, err, campaign.ErrUnknownCampaign)
}

func TestService_GetCampaigns(t *testing.T) {
	f := newFixture(t)
	f.campaigns.snapshots[CAMPAIGN_ID] = campaign.Snapshot{Id: CAMPAIGN_ID, Status: campaign.Completed}
	f.records.records = []model.CampaignRecord{
		{Id: "old", Status: "completed"},
		{Id: CAMPAIGN_ID, Status: "running"},
	}

	campaigns, err := f.srv.GetCampaigns()

	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	require.Equal(t, "old", campaigns[0].Id)
	require.Equal(t, CAMPAIGN_ID, campaigns[1].Id)
	require.Equal(t, "completed", campaigns[1].Status)
}

func TestService_GetLogs(t *testing.T) {
	f := newFixture(t)
	f.logs.logs = []model.DeliveryLog{
		{Id: 1, CampaignId: CAMPAIGN_ID, Phone: PHONE, Status: model.SENT, SentAt: sentAt},
		{Id: 2, CampaignId: "other", Phone: "111", Status: model.FAILED, Error: "Invalid number", SentAt: sentAt},
	}

	entries, err := f.srv.GetLogs(CAMPAIGN_ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, PHONE, entries[0].ContactNumber)

	entries, err = f.srv.GetLogs(ALL_LOGS)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "Invalid number", entries[1].ErrorMessage)

	entries, err = f.srv.GetLogs("missing")
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
}

func TestService_ExportLogs(t *testing.T) {
	f := newFixture(t)
	f.logs.logs = []model.DeliveryLog{
		{CampaignId: CAMPAIGN_ID, Phone: PHONE, Status: model.SENT, SentAt: sentAt},
		{CampaignId: CAMPAIGN_ID, Phone: "111", Status: model.FAILED, Error: "Invalid, number", SentAt: sentAt},
	}
	var buf bytes.Buffer

	require.NoError(t, f.srv.ExportLogs(CAMPAIGN_ID, &buf))

	require.Equal(t, "Campaign ID,Contact Number,Status,Sent At,Error Message\n"+
		CAMPAIGN_ID+","+PHONE+",sent,2024-03-01 12:30:00,\n"+
		CAMPAIGN_ID+",111,failed,2024-03-01 12:30:00,\"Invalid, number\"\n", buf.String())
}

func TestService_CleanupDb(t *testing.T) {
	f := newFixture(t)

	f.srv.CleanupDb()

	require.Equal(t, 7, f.logs.purgedDays)
}

func TestService_HandleDeliveryOutcome(t *testing.T) {
	f := newFixture(t)
	hooked := make(chan []byte, 1)
	f.srv.webhook = "http://www.kg"
	f.srv.httpClient = NewTestClient(func(req *http.Request) *http.Response {
		body, _ := io.ReadAll(req.Body)
		hooked <- body
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(bytes.NewBufferString(`OK`)),
			Header:     make(http.Header),
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.deliverHooks(ctx)

	f.srv.HandleDeliveryOutcome(event.Event{Kind: event.DeliveryOutcome, CampaignId: CAMPAIGN_ID, Phone: PHONE,
		Result: event.ResultFailed, Reason: "Invalid number", Time: sentAt})

	logs := f.logs.all()
	require.Len(t, logs, 1)
	require.Equal(t, model.FAILED, logs[0].Status)
	require.Equal(t, "Invalid number", logs[0].Error)
	require.Equal(t, sentAt, logs[0].SentAt)

	var e event.Event
	select {
	case body := <-hooked:
		require.NoError(t, json.Unmarshal(body, &e))
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called")
	}
	require.Equal(t, PHONE, e.Phone)
	require.Equal(t, event.ResultFailed, e.Result)
}

func TestService_HandleDeliveryOutcome_FailureWithoutReason(t *testing.T) {
	f := newFixture(t)

	f.srv.HandleDeliveryOutcome(event.Event{Kind: event.DeliveryOutcome, CampaignId: CAMPAIGN_ID, Phone: PHONE,
		Result: event.ResultFailed, Time: sentAt})

	logs := f.logs.all()
	require.Len(t, logs, 1)
	require.Equal(t, model.FAILED, logs[0].Status)
}

func TestService_HandleDeliveryOutcome_SlowWebhook(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.srv.webhook = "http://www.kg"
	f.srv.httpClient = NewTestClient(func(req *http.Request) *http.Response {
		<-release
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(bytes.NewBufferString(`OK`)),
			Header:     make(http.Header),
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.srv.deliverHooks(ctx)
	}()
	defer func() {
		close(release)
		cancel()
		<-done
	}()

	//recording never waits for the webhook, overflow is dropped
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < WEBHOOK_QUEUE+10; i++ {
			f.srv.HandleDeliveryOutcome(event.Event{Kind: event.DeliveryOutcome, CampaignId: CAMPAIGN_ID, Phone: PHONE,
				Result: event.ResultSent, Time: sentAt})
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery outcomes blocked on the webhook")
	}
	require.Len(t, f.logs.all(), WEBHOOK_QUEUE+10)
}

func TestService_Run(t *testing.T) {
	f := newFixture(t)
	f.campaigns.snapshots[CAMPAIGN_ID] = campaign.Snapshot{Id: CAMPAIGN_ID, Status: campaign.Running, Sent: 1, Total: 2}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- f.srv.Run(ctx)
	}()

	//wait for the subscription
	require.Eventually(t, func() bool {
		f.publisher.Publish(event.Event{Kind: event.CampaignProgress, CampaignId: CAMPAIGN_ID, Sent: 1, Total: 2})
		return len(f.records.saved()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	f.publisher.Publish(event.Event{Kind: event.DeliveryOutcome, CampaignId: CAMPAIGN_ID, Phone: PHONE, Result: event.ResultSent})
	require.Eventually(t, func() bool {
		logs := f.logs.all()
		return len(logs) == 1 && logs[0].Status == model.SENT
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, CAMPAIGN_ID, f.records.saved()[0].Id)
}

// RoundTripFunc .
type RoundTripFunc func(req *http.Request) *http.Response

// RoundTrip .
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

//NewTestClient returns *http.Client with Transport replaced to avoid making real calls
func NewTestClient(fn RoundTripFunc) *http.Client {
	return &http.Client{
		Transport: RoundTripFunc(fn),
	}
}

//----------------------mocks------------

type mockSessions struct {
	live        map[string]session.Session
	activated   []string
	removed     []string
	activateErr error
}

func (m *mockSessions) Activate(id string) error {
	if m.activateErr != nil {
		return m.activateErr
	}
	m.activated = append(m.activated, id)
	return nil
}

func (m *mockSessions) Remove(id string) {
	m.removed = append(m.removed, id)
	delete(m.live, id)
}

func (m *mockSessions) Get(id string) (session.Session, bool) {
	s, ok := m.live[id]
	return s, ok
}

type startCall struct {
	sessionId   string
	message     string
	attachments []model.Attachment
	contacts    []model.Contact
}

type mockCampaigns struct {
	snapshots map[string]campaign.Snapshot
	started   startCall
	startErr  error
}

func (m *mockCampaigns) Start(sessionId, message string, attachments []model.Attachment, contacts []model.Contact) (string, error) {
	if m.startErr != nil {
		return "", m.startErr
	}
	m.started = startCall{sessionId: sessionId, message: message, attachments: attachments, contacts: contacts}
	return CAMPAIGN_ID, nil
}

func (m *mockCampaigns) Stop(id string) error {
	return nil
}

func (m *mockCampaigns) Resume(id string) error {
	return nil
}

func (m *mockCampaigns) Cancel(id string) error {
	return nil
}

func (m *mockCampaigns) Get(id string) (campaign.Snapshot, error) {
	snap, ok := m.snapshots[id]
	if !ok {
		return campaign.Snapshot{}, campaign.ErrUnknownCampaign
	}
	return snap, nil
}

func (m *mockCampaigns) List() []campaign.Snapshot {
	var list []campaign.Snapshot
	for _, snap := range m.snapshots {
		list = append(list, snap)
	}
	return list
}

func (m *mockCampaigns) Stats() campaign.Stats {
	return campaign.Stats{}
}

type mockDeviceDao struct {
	devices []model.Device
	created []string
	removed []string
}

func (m *mockDeviceDao) Create(sessionName string) (uint32, error) {
	m.created = append(m.created, sessionName)
	return uint32(len(m.created)), nil
}

func (m *mockDeviceDao) Exists(sessionName string) (bool, error) {
	for _, d := range m.devices {
		if d.SessionName == sessionName {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDeviceDao) MarkConnected(sessionName, address string, at time.Time) error {
	panic("implement me")
}

func (m *mockDeviceDao) MarkDisconnected(sessionName string, at time.Time) error {
	panic("implement me")
}

func (m *mockDeviceDao) GetAll() ([]model.Device, error) {
	return m.devices, nil
}

func (m *mockDeviceDao) Remove(sessionName string) error {
	m.removed = append(m.removed, sessionName)
	return nil
}

type mockCampaignDao struct {
	mu      sync.Mutex
	records []model.CampaignRecord
	writes  []model.CampaignRecord
}

func (m *mockCampaignDao) Save(record model.CampaignRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, record)
	return nil
}

func (m *mockCampaignDao) GetOneById(id string) (model.CampaignRecord, error) {
	for _, r := range m.records {
		if r.Id == id {
			return r, nil
		}
	}
	return model.CampaignRecord{}, storm.ErrNotFound
}

func (m *mockCampaignDao) GetAll() ([]model.CampaignRecord, error) {
	return m.records, nil
}

func (m *mockCampaignDao) saved() []model.CampaignRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CampaignRecord(nil), m.writes...)
}

type mockDeliveryLogDao struct {
	mu         sync.Mutex
	logs       []model.DeliveryLog
	purgedDays int
}

func (m *mockDeliveryLogDao) Create(log model.DeliveryLog) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.Id = uint32(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return log.Id, nil
}

func (m *mockDeliveryLogDao) GetAllByCampaignId(campaignId string) ([]model.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var logs []model.DeliveryLog
	for _, l := range m.logs {
		if l.CampaignId == campaignId {
			logs = append(logs, l)
		}
	}
	return logs, nil
}

func (m *mockDeliveryLogDao) GetAll() ([]model.DeliveryLog, error) {
	return m.all(), nil
}

func (m *mockDeliveryLogDao) RemoveOlderThanDays(days int) error {
	m.purgedDays = days
	return nil
}

func (m *mockDeliveryLogDao) all() []model.DeliveryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.DeliveryLog(nil), m.logs...)
}
