package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an identity handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PIN       string `json:"pin"`
}

// Register creates a wallet owner.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.service.Register(c.UserContext(), Registration{
		Phone:     req.Phone,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		PIN:       req.PIN,
	})
	if err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			return fiber.NewError(http.StatusConflict, "phone already registered")
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id":    user.ID,
		"phone":      user.Phone,
		"first_name": user.FirstName,
		"last_name":  user.LastName,
		"created_at": user.CreatedAt,
	})
}
