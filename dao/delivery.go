package dao

import (
	"time"

	"github.com/asdine/storm/v3/q"
	"github.com/dilshat/bulk-sender/model"
)

type DeliveryLogDao interface {
	//Create stores a delivery outcome and returns its id
	Create(log model.DeliveryLog) (uint32, error)
	//GetAllByCampaignId returns outcomes of the campaign in sending order
	GetAllByCampaignId(campaignId string) ([]model.DeliveryLog, error)
	//GetAll returns all outcomes in sending order
	GetAll() ([]model.DeliveryLog, error)
	//RemoveOlderThanDays removes all outcomes older than {days}
	RemoveOlderThanDays(days int) error
}

func NewDeliveryLogDao(db Db) DeliveryLogDao {
	return &deliveryLogDao{db: db}
}

type deliveryLogDao struct {
	db Db
}

func (d deliveryLogDao) Create(log model.DeliveryLog) (uint32, error) {
	err := d.db.Save(&log)
	return log.Id, err
}

func (d deliveryLogDao) GetAllByCampaignId(campaignId string) (logs []model.DeliveryLog, err error) {
	err = ignoreNotFound(d.db.Select(q.Eq("CampaignId", campaignId)).OrderBy("Id").Find(&logs))
	return
}

func (d deliveryLogDao) GetAll() (logs []model.DeliveryLog, err error) {
	err = d.db.All(&logs)
	return
}

func (d deliveryLogDao) RemoveOlderThanDays(days int) error {
	err := d.db.Select(q.Lt("SentAt", time.Now().Add(-24*time.Duration(days)*time.Hour))).Delete(&model.DeliveryLog{})
	return ignoreNotFound(err)
}
