package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/assethub/assethub/internal/cache"
)

// CachePath 是缓存维护接口。
const CachePath = "/-/cache"

// RegisterCacheRoutes 暴露 DELETE /-/cache，清空全部资源记录与清单版本。
func RegisterCacheRoutes(app *fiber.App, store cache.Store, logger *logrus.Logger) {
	if app == nil {
		return
	}

	app.Delete(CachePath, func(c fiber.Ctx) error {
		if store == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "cache_disabled"})
		}
		if err := store.Clear(c.Context()); err != nil {
			logger.WithFields(logrus.Fields{"action": "cache_clear"}).WithError(err).Error("cache_clear_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_clear_failed"})
		}
		logger.WithFields(logrus.Fields{"action": "cache_clear"}).Info("cache_cleared")
		return c.JSON(fiber.Map{"cleared": true})
	})
}
