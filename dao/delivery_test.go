package dao

import (
	"testing"
	"time"

	"github.com/dilshat/bulk-sender/model"
	"github.com/stretchr/testify/require"
)

const (
	CAMPAIGN1 = "campaign-1"
	CAMPAIGN2 = "campaign-2"
	PHONE1    = "996777123456"
	PHONE2    = "996222987654"
)

func prepareLogs(t errorHandler) (Db, func()) {
	db, cleanup := createDB(t)
	logDao := NewDeliveryLogDao(db)

	//populate db
	for _, log := range []model.DeliveryLog{
		{CampaignId: CAMPAIGN1, Phone: PHONE1, Status: model.SENT, SentAt: time.Now()},
		{CampaignId: CAMPAIGN1, Phone: PHONE2, Status: model.FAILED, Error: "timeout", SentAt: time.Now()},
		{CampaignId: CAMPAIGN2, Phone: PHONE1, Status: model.SENT, SentAt: time.Now().Add(-25 * time.Hour)},
	} {
		if _, err := logDao.Create(log); err != nil {
			t.Error(err)
		}
	}

	return db, cleanup
}

func TestDeliveryLogDao_Create(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	logDao := NewDeliveryLogDao(db)

	id, err := logDao.Create(model.DeliveryLog{CampaignId: CAMPAIGN1, Phone: PHONE1, Status: model.SENT, SentAt: time.Now()})

	require.NoError(t, err)
	require.True(t, id > 0)
}

func TestDeliveryLogDao_GetAllByCampaignId(t *testing.T) {
	db, cleanup := prepareLogs(t)
	defer cleanup()
	logDao := NewDeliveryLogDao(db)

	logs, err := logDao.GetAllByCampaignId(CAMPAIGN1)

	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, PHONE1, logs[0].Phone)
	require.Equal(t, model.FAILED, logs[1].Status)
	require.Equal(t, "timeout", logs[1].Error)

	logs, err = logDao.GetAllByCampaignId("missing")

	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestDeliveryLogDao_RemoveOlderThanDays(t *testing.T) {
	db, cleanup := prepareLogs(t)
	defer cleanup()
	logDao := NewDeliveryLogDao(db)

	err := logDao.RemoveOlderThanDays(1)

	require.NoError(t, err)

	all, _ := logDao.GetAll()
	require.Len(t, all, 2)
	for _, log := range all {
		require.Equal(t, CAMPAIGN1, log.CampaignId)
	}

	//nothing left to remove
	require.NoError(t, logDao.RemoveOlderThanDays(1))
}
