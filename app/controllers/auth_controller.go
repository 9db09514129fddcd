package controllers

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/DanielKovacs/CoachEcho/app/models"
	"github.com/DanielKovacs/CoachEcho/app/repository"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/database"
	"github.com/DanielKovacs/CoachEcho/internal/pkg/session"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates a new account and opens a session for it.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := repository.GetGlobalFactory().GetUserRepository().GetByEmail(email); err == nil {
		return jsonError(c, fiber.StatusConflict, "conflict", "An account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Registration failed")
	}

	newUser, err := models.CreateUser(name, email, req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	user := *newUser

	db := database.GetDB()
	if err := repository.GetGlobalFactory().GetUserRepository().Create(&user); err != nil {
		log.Printf("[Auth] register failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Registration failed")
	}

	// default settings carry the starter plan
	if _, err := models.GetOrCreateUserSettings(db, user.ID); err != nil {
		log.Printf("[Auth] settings bootstrap failed for user %d: %v", user.ID, err)
	}

	if err := openSession(c, &user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Session could not be created")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// HandleAuthLogin verifies credentials and opens a session.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := repository.GetGlobalFactory().GetUserRepository().GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid email or password")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Login failed")
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid email or password")
	}
	if user.Status != models.STATUS_ACTIVE {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Account is not active")
	}

	if err := openSession(c, user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Session could not be created")
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repository.GetGlobalFactory().GetUserRepository().Update(user); err != nil {
		log.Printf("[Auth] could not update last login for user %d: %v", user.ID, err)
	}

	return c.JSON(fiber.Map{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// HandleAuthLogout destroys the session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		if err := sess.Destroy(); err != nil {
			log.Printf("[Auth] session destroy failed: %v", err)
		}
	}
	c.Locals(FROM_PROTECTED, false)
	return c.JSON(fiber.Map{"status": "logged_out"})
}

func openSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}
	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)
	return sess.Save()
}
