package routes

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"

	"github.com/assethub/assethub/internal/control"
)

// ControlPath 是控制通道的 HTTP 入口。
const ControlPath = "/-/control"

// RegisterControlRoutes 暴露 POST /-/control，消息体为 {type, data} 信封。
func RegisterControlRoutes(app *fiber.App, responder *control.Responder) {
	if app == nil || responder == nil {
		return
	}

	app.Post(ControlPath, func(c fiber.Ctx) error {
		var msg control.Message
		if err := json.Unmarshal(c.Body(), &msg); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_message"})
		}
		return c.JSON(responder.Reply(msg))
	})
}
