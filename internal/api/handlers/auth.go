package handlers

import (
	"math/rand"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbuschat/nimbus-backend/internal/api/middleware"
	"github.com/nimbuschat/nimbus-backend/internal/auth"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceName string `json:"device_name"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
}

// SignupRequest represents a signup request
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Username string `json:"username"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse represents a token refresh response
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// generateRandomSuffix generates a random 4-character suffix
func generateRandomSuffix() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 4)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// Login handles user login
func Login(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if req.Email == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Email and password are required",
			})
		}

		deviceName := req.DeviceName
		if deviceName == "" {
			deviceName = "Unknown Device"
		}

		user, accessToken, refreshToken, err := authService.Login(
			c.Context(),
			req.Email,
			req.Password,
			c.IP(),
			c.Get("User-Agent"),
			deviceName,
		)
		if err != nil {
			// Don't reveal specific error to prevent user enumeration
			if err == auth.ErrInvalidCredentials || err == auth.ErrUserNotFound {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid email or password",
				})
			}
			if err == auth.ErrUserInactive {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "Account is inactive",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Login failed",
			})
		}

		setTokenCookies(c, accessToken, refreshToken)

		return c.JSON(LoginResponse{
			User: &UserResponse{
				ID:        user.ID.String(),
				Email:     user.Email,
				Username:  user.Username,
				CreatedAt: user.CreatedAt,
			},
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
		})
	}
}

// Signup handles user registration
func Signup(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req SignupRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if err := auth.ValidatePassword(req.Password); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// Default username to the mailbox part of the email
		username := req.Username
		if username == "" {
			username = req.Email
			if atIndex := strings.Index(req.Email, "@"); atIndex > 0 {
				username = req.Email[:atIndex]
			}
		}

		user, err := authService.SignUp(c.Context(), req.Email, username, req.Password)
		if err != nil {
			if err == auth.ErrEmailAlreadyExists {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "Email already registered",
				})
			}
			if err == auth.ErrUsernameAlreadyExists {
				// Retry once with a random suffix
				username = username + "_" + generateRandomSuffix()
				user, err = authService.SignUp(c.Context(), req.Email, username, req.Password)
				if err != nil {
					return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
						"error": "Registration failed",
					})
				}
			} else {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Registration failed",
				})
			}
		}

		// Auto-login after signup
		_, accessToken, refreshToken, err := authService.Login(
			c.Context(),
			req.Email,
			req.Password,
			c.IP(),
			c.Get("User-Agent"),
			"New Registration",
		)
		if err != nil {
			// User created but login failed, they can login manually
			return c.JSON(fiber.Map{
				"user": &UserResponse{
					ID:        user.ID.String(),
					Email:     user.Email,
					Username:  user.Username,
					CreatedAt: user.CreatedAt,
				},
				"message": "Registration successful. Please login.",
			})
		}

		setTokenCookies(c, accessToken, refreshToken)

		return c.JSON(LoginResponse{
			User: &UserResponse{
				ID:        user.ID.String(),
				Email:     user.Email,
				Username:  user.Username,
				CreatedAt: user.CreatedAt,
			},
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
		})
	}
}

// RefreshToken handles token refresh
func RefreshToken(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RefreshRequest
		c.BodyParser(&req)

		refreshToken := req.RefreshToken
		if refreshToken == "" {
			refreshToken = auth.ExtractTokenFromBearer(c.Get("Authorization"))
		}
		if refreshToken == "" {
			refreshToken = c.Cookies("refresh_token")
		}

		if refreshToken == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Refresh token required",
			})
		}

		newAccessToken, newRefreshToken, err := authService.RefreshToken(c.Context(), refreshToken)
		if err != nil {
			if err == auth.ErrInvalidToken || err == auth.ErrExpiredToken {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired refresh token",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Token refresh failed",
			})
		}

		setTokenCookies(c, newAccessToken, newRefreshToken)

		return c.JSON(RefreshResponse{
			AccessToken:  newAccessToken,
			RefreshToken: newRefreshToken,
			ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
		})
	}
}

// Logout handles user logout
func Logout(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessionID := c.Locals("session_id"); sessionID != nil {
			if id, ok := sessionID.(string); ok {
				// Revoking can fail without failing the logout
				if err := authService.Logout(c.Context(), id); err != nil {
					c.App().Config().ErrorHandler(c, err)
				}
			}
		}

		clearTokenCookies(c)

		return c.JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}
}

// GetCurrentUser returns the current authenticated user
func GetCurrentUser(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		user, err := authService.GetUser(c.Context(), userContext.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get user data",
			})
		}

		return c.JSON(&UserResponse{
			ID:        user.ID.String(),
			Email:     user.Email,
			Username:  user.Username,
			CreatedAt: user.CreatedAt,
		})
	}
}

// ChangePassword changes the current user's password
func ChangePassword(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			CurrentPassword string `json:"current_password" validate:"required"`
			NewPassword     string `json:"new_password" validate:"required,min=8"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if err := auth.ValidatePassword(req.NewPassword); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		if err := authService.ChangePassword(
			c.Context(),
			userContext.UserID,
			req.CurrentPassword,
			req.NewPassword,
		); err != nil {
			if err == auth.ErrInvalidCredentials {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Current password is incorrect",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to change password",
			})
		}

		return c.JSON(fiber.Map{
			"message": "Password changed successfully",
		})
	}
}

func setTokenCookies(c *fiber.Ctx, accessToken, refreshToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Expires:  time.Now().Add(auth.AccessTokenTTL),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Expires:  time.Now().Add(auth.RefreshTokenTTL),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func clearTokenCookies(c *fiber.Ctx) {
	for _, name := range []string{"access_token", "refresh_token"} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Expires:  time.Now().Add(-time.Hour),
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Strict",
		})
	}
}
