package main

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/brickline/internal/config"
	"github.com/example/brickline/internal/database"
	"github.com/example/brickline/internal/routes"
	"github.com/example/brickline/internal/services"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	app := fiber.New(fiber.Config{
		AppName:      "Brickline Backend",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, cfg)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}

// errorHandler maps business-rule violations to their stable codes and
// everything else to fiber's default status handling.
func errorHandler(c *fiber.Ctx, err error) error {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return c.Status(domainErr.Status).JSON(fiber.Map{
			"success": false,
			"code":    domainErr.Code,
			"message": domainErr.Message,
		})
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
	})
}
