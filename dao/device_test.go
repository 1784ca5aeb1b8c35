package dao

import (
	"testing"
	"time"

	"github.com/dilshat/bulk-sender/model"
	"github.com/stretchr/testify/require"
)

const (
	SESSION1 = "office-phone"
	SESSION2 = "sales-phone"
	ADDRESS1 = "996777123456"
)

func TestDeviceDao_Create(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	devDao := NewDeviceDao(db)

	id, err := devDao.Create(SESSION1)

	require.NoError(t, err)
	require.True(t, id > 0)

	again, err := devDao.Create(SESSION1)

	require.NoError(t, err)
	require.Equal(t, id, again)
}

func TestDeviceDao_Exists(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	devDao := NewDeviceDao(db)
	_, _ = devDao.Create(SESSION1)

	exists, err := devDao.Exists(SESSION1)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = devDao.Exists(SESSION2)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDeviceDao_MarkConnected(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	devDao := NewDeviceDao(db)
	_, _ = devDao.Create(SESSION1)
	now := time.Now()

	err := devDao.MarkConnected(SESSION1, ADDRESS1, now)
	require.NoError(t, err)

	//unknown session is upserted
	err = devDao.MarkConnected(SESSION2, ADDRESS1, now)
	require.NoError(t, err)

	all, err := devDao.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, device := range all {
		require.Equal(t, model.DEVICE_CONNECTED, device.Status)
		require.Equal(t, ADDRESS1, device.Address)
	}
}

func TestDeviceDao_MarkDisconnected(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	devDao := NewDeviceDao(db)
	_ = devDao.MarkConnected(SESSION1, ADDRESS1, time.Now())

	err := devDao.MarkDisconnected(SESSION1, time.Now())
	require.NoError(t, err)

	all, _ := devDao.GetAll()
	require.Len(t, all, 1)
	require.Equal(t, model.DEVICE_DISCONNECTED, all[0].Status)
	require.Equal(t, ADDRESS1, all[0].Address)
}

func TestDeviceDao_GetAll(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	devDao := NewDeviceDao(db)

	all, err := devDao.GetAll()
	require.NoError(t, err)
	require.Empty(t, all)

	_, _ = devDao.Create(SESSION1)
	time.Sleep(time.Millisecond)
	_, _ = devDao.Create(SESSION2)

	all, err = devDao.GetAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, SESSION2, all[0].SessionName)
}

func TestDeviceDao_Remove(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	devDao := NewDeviceDao(db)
	_, _ = devDao.Create(SESSION1)

	require.NoError(t, devDao.Remove(SESSION1))
	require.NoError(t, devDao.Remove(SESSION1))

	exists, _ := devDao.Exists(SESSION1)
	require.False(t, exists)
}
