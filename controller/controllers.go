package controller

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dilshat/bulk-sender/campaign"
	"github.com/dilshat/bulk-sender/service"
	"github.com/dilshat/bulk-sender/service/dto"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const MALFUNCTION = "System malfunction. Please, try later"

// respondErr maps service errors to http statuses.
func respondErr(c echo.Context, err error) error {
	var invalid *service.InvalidPayloadErr
	switch {
	case errors.As(err, &invalid),
		errors.Is(err, campaign.ErrEmptyQueue),
		errors.Is(err, campaign.ErrSessionUnknown):
		return c.JSON(http.StatusBadRequest, dto.Error{Error: err.Error()})
	case errors.Is(err, campaign.ErrUnknownCampaign),
		errors.Is(err, service.ErrUnknownDevice):
		return c.JSON(http.StatusNotFound, dto.Error{Error: err.Error()})
	case errors.Is(err, campaign.ErrSessionBusy),
		errors.Is(err, campaign.ErrCampaignCompleted):
		return c.JSON(http.StatusConflict, dto.Error{Error: err.Error()})
	case errors.Is(err, campaign.ErrShuttingDown):
		return c.JSON(http.StatusServiceUnavailable, dto.Error{Error: err.Error()})
	default:
		zap.L().Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, dto.Error{Error: MALFUNCTION})
	}
}

// AddDevice godoc
// @Summary Add device
// @Description Stores a device and starts authentication of its session
// @Accept json
// @Produce json
// @Param device body dto.NewDevice true "Device"
// @Success 200 {object} dto.DeviceCreated
// @Failure 400 {object} dto.Error
// @Router /api/devices [post]
func GetAddDeviceFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		device := new(dto.NewDevice)
		if err := c.Bind(device); err != nil {
			return err
		}

		created, err := srv.AddDevice(*device)
		if err != nil {
			return respondErr(c, err)
		}

		return c.JSON(http.StatusOK, created)
	}
}

// GetDevices godoc
// @Summary List devices
// @Description Lists stored devices with the live state of their sessions
// @Produce json
// @Success 200 {array} dto.Device
// @Router /api/devices [get]
func GetDevicesFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		devices, err := srv.GetDevices()
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, devices)
	}
}

// RemoveDevice godoc
// @Summary Remove device
// @Description Disconnects the session and deletes the device
// @Produce json
// @Param sessionName path string true "Session name"
// @Success 200 {object} dto.Message
// @Failure 404 {object} dto.Error
// @Router /api/devices/{sessionName} [delete]
func GetRemoveDeviceFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := srv.RemoveDevice(c.Param("sessionName"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, dto.Message{Message: "Device disconnected and session removed"})
	}
}

// UploadContacts godoc
// @Summary Upload contacts
// @Description Parses a .csv (phone/number and name columns) or .txt (one phone per line) file
// @Accept mpfd
// @Produce json
// @Param contacts formData file true "Contacts file"
// @Success 200 {object} dto.ContactList
// @Failure 400 {object} dto.Error
// @Router /api/upload/contacts [post]
func GetUploadContactsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		header, err := c.FormFile("contacts")
		if err != nil {
			return c.JSON(http.StatusBadRequest, dto.Error{Error: "No file uploaded"})
		}

		file, err := header.Open()
		if err != nil {
			return respondErr(c, err)
		}
		defer file.Close()

		list, err := srv.UploadContacts(service.Upload{Name: header.Filename, Reader: file})
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

// UploadImages godoc
// @Summary Upload images
// @Description Stores up to 10 images to attach to a campaign
// @Accept mpfd
// @Produce json
// @Param images formData file true "Images"
// @Success 200 {object} dto.ImageList
// @Failure 400 {object} dto.Error
// @Router /api/upload/images [post]
func GetUploadImagesFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		form, err := c.MultipartForm()
		if err != nil || len(form.File["images"]) == 0 {
			return c.JSON(http.StatusBadRequest, dto.Error{Error: "No images uploaded"})
		}

		uploads, closers, err := open(form.File["images"])
		defer func() {
			for _, f := range closers {
				_ = f.Close()
			}
		}()
		if err != nil {
			return respondErr(c, err)
		}

		list, err := srv.UploadImages(uploads)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

func open(headers []*multipart.FileHeader) ([]service.Upload, []io.Closer, error) {
	var uploads []service.Upload
	var closers []io.Closer
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, file)
		uploads = append(uploads, service.Upload{Name: header.Filename, Reader: file})
	}
	return uploads, closers, nil
}

// StartCampaign godoc
// @Summary Start campaign
// @Description Starts sending the message to every contact through the device session
// @Accept json
// @Produce json
// @Param campaign body dto.NewCampaign true "Campaign"
// @Success 200 {object} dto.CampaignStarted
// @Failure 400 {object} dto.Error
// @Failure 409 {object} dto.Error "session is busy"
// @Router /api/campaigns [post]
func GetStartCampaignFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		request := new(dto.NewCampaign)
		if err := c.Bind(request); err != nil {
			return err
		}

		started, err := srv.StartCampaign(*request)
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, started)
	}
}

// GetCampaigns godoc
// @Summary List campaigns
// @Produce json
// @Success 200 {array} dto.Campaign
// @Router /api/campaigns [get]
func GetCampaignsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		campaigns, err := srv.GetCampaigns()
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, campaigns)
	}
}

// GetCampaign godoc
// @Summary Get campaign
// @Produce json
// @Param id path string true "Campaign id"
// @Success 200 {object} dto.Campaign
// @Failure 404 {object} dto.Error
// @Router /api/campaigns/{id} [get]
func GetCampaignFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		found, err := srv.GetCampaign(c.Param("id"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, found)
	}
}

// StopCampaign godoc
// @Summary Stop campaign
// @Description Pauses the campaign before its next contact
// @Produce json
// @Param id path string true "Campaign id"
// @Success 200 {object} dto.Message
// @Failure 404 {object} dto.Error
// @Failure 409 {object} dto.Error
// @Router /api/campaigns/{id}/stop [post]
func GetStopCampaignFunc(srv service.Service) echo.HandlerFunc {
	return campaignActionFunc(srv.StopCampaign, "Campaign stopped")
}

// ResumeCampaign godoc
// @Summary Resume campaign
// @Description Continues a paused campaign with its first pending contact
// @Produce json
// @Param id path string true "Campaign id"
// @Success 200 {object} dto.Message
// @Failure 404 {object} dto.Error
// @Failure 409 {object} dto.Error
// @Router /api/campaigns/{id}/resume [post]
func GetResumeCampaignFunc(srv service.Service) echo.HandlerFunc {
	return campaignActionFunc(srv.ResumeCampaign, "Campaign resumed")
}

// CancelCampaign godoc
// @Summary Cancel campaign
// @Description Completes the campaign, pending contacts are never sent
// @Produce json
// @Param id path string true "Campaign id"
// @Success 200 {object} dto.Message
// @Failure 404 {object} dto.Error
// @Failure 409 {object} dto.Error
// @Router /api/campaigns/{id}/cancel [post]
func GetCancelCampaignFunc(srv service.Service) echo.HandlerFunc {
	return campaignActionFunc(srv.CancelCampaign, "Campaign cancelled")
}

func campaignActionFunc(action func(id string) error, message string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := action(c.Param("id")); err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, dto.Message{Message: message})
	}
}

// GetStats godoc
// @Summary Dashboard stats
// @Produce json
// @Success 200 {object} campaign.Stats
// @Router /api/dashboard/stats [get]
func GetStatsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, srv.GetStats())
	}
}

// GetLogs godoc
// @Summary Delivery logs
// @Description Lists delivery outcomes of a campaign, "all" lists every campaign
// @Produce json
// @Param campaignId path string true "Campaign id"
// @Success 200 {array} dto.LogEntry
// @Router /api/logs/{campaignId} [get]
func GetLogsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		logs, err := srv.GetLogs(c.Param("campaignId"))
		if err != nil {
			return respondErr(c, err)
		}
		return c.JSON(http.StatusOK, logs)
	}
}

// ExportLogs godoc
// @Summary Export delivery logs
// @Description Downloads delivery outcomes as csv
// @Produce text/csv
// @Param campaignId path string true "Campaign id"
// @Success 200 {file} file
// @Router /api/logs/export/{campaignId} [get]
func GetExportLogsFunc(srv service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		campaignId := c.Param("campaignId")
		if campaignId == "" {
			campaignId = service.ALL_LOGS
		}

		header := c.Response().Header()
		header.Set(echo.HeaderContentType, "text/csv")
		header.Set(echo.HeaderContentDisposition, "attachment; filename=logs-"+campaignId+".csv")
		c.Response().WriteHeader(http.StatusOK)

		err := srv.ExportLogs(campaignId, c.Response())
		if err != nil {
			zap.L().Error("Error exporting logs", zap.String("campaign", campaignId), zap.Error(err))
		}
		return nil
	}
}
