package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xkrfer/telegram-pm-relay/internal/core/port"
	"github.com/xkrfer/telegram-pm-relay/internal/usecase"
)

// CaptchaVerifier exchanges a client CAPTCHA response with the provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, responseToken string) (bool, error)
}

// SessionCompleter covers the verification engine operations the web flow
// needs.
type SessionCompleter interface {
	InspectToken(ctx context.Context, token string) error
	MarkVerifiedByToken(ctx context.Context, token string) (string, error)
}

// VerifyHandler serves the out-of-band verification page and completes
// Turnstile-based verification sessions.
type VerifyHandler struct {
	verification SessionCompleter
	captcha      CaptchaVerifier
	messenger    port.Messenger
	siteKey      string
	logger       *zap.Logger
}

// NewVerifyHandler builds the web verification handler.
func NewVerifyHandler(verification SessionCompleter, captcha CaptchaVerifier, messenger port.Messenger, siteKey string, logger *zap.Logger) *VerifyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerifyHandler{
		verification: verification,
		captcha:      captcha,
		messenger:    messenger,
		siteKey:      siteKey,
		logger:       logger,
	}
}

const (
	linkInvalidHTML  = "<h1>❌ Invalid Verification Link</h1>\n<p>This verification link does not exist or has been used.</p>\n<p>Please send a new message to the bot to get a new verification link.</p>"
	linkVerifiedHTML = "<h1>✅ Already Verified</h1>\n<p>Your account has been verified and you can use the bot directly.</p>"
	linkExpiredHTML  = "<h1>⏰ Verification Link Expired</h1>\n<p>This verification link has expired. Please send a new message to the bot to get a new verification link.</p>"
	linkFailedHTML   = "<h1>❌ Failed to Load Verification Page</h1>"

	successNotification = "🎉 Verification successful!\n\nYour account has been verified and you can now use the bot normally."
)

// Page serves the verification challenge page for a live session, or a
// terse status page for dead links.
func (h *VerifyHandler) Page(c *gin.Context) {
	token := c.Param("token")

	err := h.verification.InspectToken(c.Request.Context(), token)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
		c.Header("Content-Type", "text/html; charset=utf-8")
		data := struct{ SiteKey string }{SiteKey: h.siteKey}
		if err := verifyPage.Execute(c.Writer, data); err != nil {
			h.logger.Error("render verify page failed", zap.Error(err))
		}
	case errors.Is(err, usecase.ErrTokenInvalid):
		c.Data(http.StatusNotFound, "text/html; charset=utf-8", []byte(linkInvalidHTML))
	case errors.Is(err, usecase.ErrAlreadyVerified):
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(linkVerifiedHTML))
	case errors.Is(err, usecase.ErrTokenExpired):
		c.Data(http.StatusGone, "text/html; charset=utf-8", []byte(linkExpiredHTML))
	default:
		h.logger.Error("serve verify page failed", zap.Error(err))
		c.Data(http.StatusInternalServerError, "text/html; charset=utf-8", []byte(linkFailedHTML))
	}
}

type submitRequest struct {
	Token string `json:"token"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Submit validates the CAPTCHA response, marks the session verified, and
// notifies the guest over Telegram.
func (h *VerifyHandler) Submit(c *gin.Context) {
	sessionToken := c.Param("token")

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusOK, submitResponse{Error: "Missing verification token"})
		return
	}

	ok, err := h.captcha.Verify(c.Request.Context(), req.Token)
	if err != nil {
		h.logger.Error("turnstile verify failed", zap.Error(err))
		c.JSON(http.StatusOK, submitResponse{Error: "Server error"})
		return
	}
	if !ok {
		h.logger.Warn("turnstile rejected response")
		c.JSON(http.StatusOK, submitResponse{Error: "Verification failed, please try again"})
		return
	}

	userID, err := h.verification.MarkVerifiedByToken(c.Request.Context(), sessionToken)
	switch {
	case err == nil:
	case errors.Is(err, usecase.ErrTokenInvalid):
		c.JSON(http.StatusOK, submitResponse{Error: "Invalid verification link"})
		return
	case errors.Is(err, usecase.ErrTokenExpired):
		c.JSON(http.StatusOK, submitResponse{Error: "Verification link expired, please get a new one"})
		return
	default:
		h.logger.Error("mark verified failed", zap.Error(err))
		c.JSON(http.StatusOK, submitResponse{Error: "Server error"})
		return
	}

	if _, err := h.messenger.SendText(c.Request.Context(), userID, successNotification); err != nil {
		h.logger.Warn("verification success notice failed",
			zap.String("user_id", userID), zap.Error(err))
	}

	c.JSON(http.StatusOK, submitResponse{Success: true})
}

var verifyPage = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Human Verification - Telegram Bot</title>
  <script src="https://challenges.cloudflare.com/turnstile/v0/api.js" async defer></script>
  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
      min-height: 100vh;
      display: flex;
      align-items: center;
      justify-content: center;
      padding: 20px;
    }
    .container {
      background: white;
      border-radius: 20px;
      box-shadow: 0 20px 60px rgba(0,0,0,0.3);
      padding: 40px;
      max-width: 400px;
      width: 100%;
      text-align: center;
    }
    h1 { color: #333; font-size: 28px; margin-bottom: 10px; }
    .icon { font-size: 48px; margin-bottom: 20px; }
    p { color: #666; margin-bottom: 30px; line-height: 1.6; }
    .cf-turnstile { margin: 0 auto 20px; }
    button {
      background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
      color: white;
      border: none;
      padding: 15px 40px;
      border-radius: 10px;
      font-size: 16px;
      font-weight: bold;
      cursor: pointer;
      transition: transform 0.2s, box-shadow 0.2s;
      width: 100%;
    }
    button:hover { transform: translateY(-2px); box-shadow: 0 10px 20px rgba(0,0,0,0.2); }
    button:active { transform: translateY(0); }
    button:disabled {
      background: #ccc;
      cursor: not-allowed;
      transform: none;
    }
    .message {
      margin-top: 20px;
      padding: 15px;
      border-radius: 10px;
      display: none;
    }
    .message.success { background: #d4edda; color: #155724; display: block; }
    .message.error { background: #f8d7da; color: #721c24; display: block; }
  </style>
</head>
<body>
  <div class="container">
    <div class="icon">🔒</div>
    <h1>Human Verification</h1>
    <p>First-time users need to complete human verification before using the bot.</p>

    <div class="cf-turnstile" data-sitekey="{{.SiteKey}}" data-callback="onTurnstileSuccess"></div>

    <button id="submitBtn" onclick="submitVerification()" disabled>
      Complete Verification
    </button>

    <div id="message" class="message"></div>
  </div>

  <script>
    let turnstileToken = null;

    const messages = {
      noToken: "Please complete human verification first",
      loading: "Verifying...",
      retry: "Retry",
      success: "✅ Verification successful! Redirecting...",
      verifyFailed: "Verification failed, please try again",
      networkError: "Network error, please check your connection and try again"
    };

    function onTurnstileSuccess(token) {
      turnstileToken = token;
      document.getElementById('submitBtn').disabled = false;
    }

    async function submitVerification() {
      if (!turnstileToken) {
        showMessage(messages.noToken, 'error');
        return;
      }

      const btn = document.getElementById('submitBtn');
      btn.disabled = true;
      btn.textContent = messages.loading;

      try {
        const resp = await fetch(window.location.pathname, {
          method: 'POST',
          headers: { 'Content-Type': 'application/json' },
          body: JSON.stringify({ token: turnstileToken })
        });
        const data = await resp.json();

        if (data.success) {
          showMessage(messages.success, 'success');
        } else {
          showMessage(data.error || messages.verifyFailed, 'error');
          btn.disabled = false;
          btn.textContent = messages.retry;
        }
      } catch (err) {
        showMessage(messages.networkError, 'error');
        btn.disabled = false;
        btn.textContent = messages.retry;
      }
    }

    function showMessage(text, kind) {
      const el = document.getElementById('message');
      el.textContent = text;
      el.className = 'message ' + kind;
    }
  </script>
</body>
</html>
`))
