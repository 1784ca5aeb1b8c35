package dao

import (
	"time"

	"github.com/dilshat/bulk-sender/model"
)

type DeviceDao interface {
	//Create stores a device row for the session unless one exists and returns its id
	Create(sessionName string) (uint32, error)
	//Exists reports whether a row for the session is stored
	Exists(sessionName string) (bool, error)
	//MarkConnected records the account address and connected status
	MarkConnected(sessionName, address string, at time.Time) error
	//MarkDisconnected records the disconnected status
	MarkDisconnected(sessionName string, at time.Time) error
	//GetAll returns all devices, newest first
	GetAll() ([]model.Device, error)
	//Remove deletes the row of the session
	Remove(sessionName string) error
}

func NewDeviceDao(db Db) DeviceDao {
	return &deviceDao{db: db}
}

type deviceDao struct {
	db Db
}

func (d deviceDao) Create(sessionName string) (uint32, error) {
	var device model.Device
	err := d.db.One("SessionName", sessionName, &device)
	if err == nil {
		return device.Id, nil
	}
	if ignoreNotFound(err) != nil {
		return 0, err
	}
	device = model.Device{SessionName: sessionName, Status: model.DEVICE_DISCONNECTED, CreatedAt: time.Now()}
	err = d.db.Save(&device)
	return device.Id, err
}

func (d deviceDao) Exists(sessionName string) (bool, error) {
	var device model.Device
	err := d.db.One("SessionName", sessionName, &device)
	if err != nil {
		return false, ignoreNotFound(err)
	}
	return true, nil
}

func (d deviceDao) MarkConnected(sessionName, address string, at time.Time) error {
	return d.upsert(sessionName, func(device *model.Device) {
		device.Address = address
		device.Status = model.DEVICE_CONNECTED
		device.LastSeen = at
	})
}

func (d deviceDao) MarkDisconnected(sessionName string, at time.Time) error {
	return d.upsert(sessionName, func(device *model.Device) {
		device.Status = model.DEVICE_DISCONNECTED
		device.LastSeen = at
	})
}

func (d deviceDao) upsert(sessionName string, apply func(device *model.Device)) error {
	var device model.Device
	err := d.db.One("SessionName", sessionName, &device)
	if err != nil {
		if ignoreNotFound(err) != nil {
			return err
		}
		device = model.Device{SessionName: sessionName, CreatedAt: time.Now()}
	}
	apply(&device)
	return d.db.Save(&device)
}

func (d deviceDao) GetAll() (devices []model.Device, err error) {
	err = ignoreNotFound(d.db.Select().OrderBy("CreatedAt").Reverse().Find(&devices))
	return
}

func (d deviceDao) Remove(sessionName string) error {
	var device model.Device
	err := d.db.One("SessionName", sessionName, &device)
	if err != nil {
		return ignoreNotFound(err)
	}
	return d.db.DeleteStruct(&device)
}
