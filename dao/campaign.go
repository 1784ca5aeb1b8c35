package dao

import (
	"github.com/dilshat/bulk-sender/model"
)

type CampaignDao interface {
	//Save creates or replaces the snapshot of a campaign
	Save(record model.CampaignRecord) error
	//GetOneById returns campaign snapshot by id
	GetOneById(id string) (model.CampaignRecord, error)
	//GetAll returns all snapshots in creation order
	GetAll() ([]model.CampaignRecord, error)
}

func NewCampaignDao(db Db) CampaignDao {
	return &campaignDao{db: db}
}

type campaignDao struct {
	db Db
}

func (d campaignDao) Save(record model.CampaignRecord) error {
	return d.db.Save(&record)
}

func (d campaignDao) GetOneById(id string) (record model.CampaignRecord, err error) {
	err = d.db.One("Id", id, &record)
	return
}

func (d campaignDao) GetAll() (records []model.CampaignRecord, err error) {
	err = ignoreNotFound(d.db.Select().OrderBy("CreatedAt").Find(&records))
	return
}
