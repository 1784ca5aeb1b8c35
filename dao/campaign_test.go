package dao

import (
	"testing"
	"time"

	"github.com/dilshat/bulk-sender/model"
	"github.com/stretchr/testify/require"
)

func TestCampaignDao_Save(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	campDao := NewCampaignDao(db)
	record := model.CampaignRecord{
		Id:          "campaign-1",
		SessionName: SESSION1,
		Text:        "Hello",
		Attachments: []model.Attachment{{Id: "a1", Name: "pic.png", Path: "uploads/pic.png"}},
		Status:      "running",
		Total:       3,
		CreatedAt:   time.Now(),
	}

	require.NoError(t, campDao.Save(record))

	record.Sent = 2
	record.Failed = 1
	record.Status = "completed"
	require.NoError(t, campDao.Save(record))

	one, err := campDao.GetOneById("campaign-1")
	require.NoError(t, err)
	require.Equal(t, 2, one.Sent)
	require.Equal(t, 1, one.Failed)
	require.Equal(t, "completed", one.Status)
	require.Len(t, one.Attachments, 1)
}

func TestCampaignDao_GetAll(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	campDao := NewCampaignDao(db)

	all, err := campDao.GetAll()
	require.NoError(t, err)
	require.Empty(t, all)

	now := time.Now()
	_ = campDao.Save(model.CampaignRecord{Id: "campaign-b", CreatedAt: now})
	_ = campDao.Save(model.CampaignRecord{Id: "campaign-a", CreatedAt: now.Add(-time.Minute)})

	all, err = campDao.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "campaign-a", all[0].Id)
}

func TestCampaignDao_GetOneById(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	campDao := NewCampaignDao(db)

	_, err := campDao.GetOneById("missing")

	require.Error(t, err)
}
