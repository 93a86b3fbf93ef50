package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"contentgate/internal/http/middleware"
	"contentgate/internal/model"
	"contentgate/internal/service"
	"contentgate/internal/shield"
)

const overlayPath = "/viewer/overlay.svg"

type accessRequest struct {
	LearningUnitID string `json:"learningUnitId"`
	DeviceType     string `json:"deviceType"`
}

type accessResponse struct {
	Token        string            `json:"token"`
	GrantID      string            `json:"grantId"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	LearningUnit model.ContentUnit `json:"learningUnit"`
	Viewer       shield.Descriptor `json:"viewer"`
}

// RequestAccess godoc
// @Summary      Request a content access token
// @Description  Checks entitlement and mints a short-lived token scoped to one learning unit.
// @Tags         access
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header  string  true  "Authenticated user"
// @Success      201  {object}  accessResponse
// @Failure      403  {object}  errorPayload
// @Router       /learning-units/access [post]
func RequestAccess(svc service.AccessService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req accessRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		}

		res, err := svc.Issue(c.UserContext(), middleware.SubjectFromCtx(c), req.LearningUnitID, req.DeviceType)
		if err != nil {
			return writeDomainError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(accessResponse{
			Token:        res.Token,
			GrantID:      res.Grant.ID,
			ExpiresAt:    res.Grant.ExpiresAt,
			LearningUnit: res.Unit,
			Viewer: shield.DescriptorFor(
				res.Unit.Type,
				res.Grant.Scope.WatermarkEnabled,
				"/uploads/"+res.Unit.StorageLocator,
				overlayPath,
			),
		})
	}
}

type progressRequest struct {
	ElapsedSeconds    float64 `json:"elapsedSeconds"`
	CompletionPercent float64 `json:"completionPercent"`
}

// RecordProgress godoc
// @Summary  Record the end of a viewing session
// @Tags     access
// @Accept   json
// @Param    grantId  path  string  true  "Grant id"
// @Success  202
// @Router   /learning-units/access/{grantId}/progress [post]
func RecordProgress(svc service.AccessService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req progressRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		}
		elapsed := time.Duration(req.ElapsedSeconds * float64(time.Second))

		err := svc.RecordProgress(c.UserContext(), middleware.SubjectFromCtx(c), c.Params("grantId"), elapsed, req.CompletionPercent)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// ListViews godoc
// @Summary  Page through the finalized view events of a grant
// @Tags     access
// @Produce  json
// @Param    grantId  path   string  true   "Grant id"
// @Param    limit    query  int     false  "Page size"
// @Param    offset   query  int     false  "Offset"
// @Success  200  {object}  service.ViewListResult
// @Router   /learning-units/access/{grantId}/views [get]
func ListViews(svc service.AccessService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.ListViews(c.UserContext(), middleware.SubjectFromCtx(c), c.Params("grantId"), limit, offset)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(res)
	}
}

type revokeRequest struct {
	GrantID        string `json:"grantId"`
	Subject        string `json:"subject"`
	LearningUnitID string `json:"learningUnitId"`
	Reason         string `json:"reason"`
}

// Revoke godoc
// @Summary  Revoke a grant, or every grant of a subject for one unit
// @Tags     internal
// @Accept   json
// @Param    X-Internal-Key  header  string  true  "Service key"
// @Success  204
// @Router   /internal/revocations [post]
func Revoke(svc service.AccessService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req revokeRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		}

		err := svc.Revoke(c.UserContext(), service.RevokeRequest{
			GrantID:    req.GrantID,
			Subject:    req.Subject,
			ResourceID: req.LearningUnitID,
			Reason:     req.Reason,
		})
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
