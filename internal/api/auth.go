package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wpphub/internal/conn"
	"github.com/matheus3301/wpphub/internal/hub"
	"github.com/matheus3301/wpphub/internal/store"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const qrImageSize = 256

var expiredBody = gin.H{"status": "error", "message": "EXPIRED"}

func (h *Handler) generateQR(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.sessions.Create(ctx, id, hub.AuthDetails{Method: conn.MethodQR}); err != nil {
		h.sessionError(c, "Failed to generate QR code", err)
		return
	}

	qr, err := h.await(ctx, id, h.opts.QRTimeout, h.sessions.AwaitQR)
	if h.expired(c, id, err) {
		return
	}
	if err != nil || qr == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "QR code not generated, client might be connected."})
		return
	}

	url, err := qrDataURL(qr)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to generate QR code", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr": qr, "qrCodeUrl": url, "sessionId": id})
}

type phoneCodeRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

func (h *Handler) generatePhoneCode(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var req phoneCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PhoneNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Phone number is required."})
		return
	}
	if _, err := h.sessions.Create(ctx, id, hub.AuthDetails{Method: conn.MethodPhone, PhoneNumber: req.PhoneNumber}); err != nil {
		h.sessionError(c, "Failed to generate phone code", err)
		return
	}

	code, err := h.await(ctx, id, h.opts.CodeTimeout, h.sessions.AwaitPhoneCode)
	if h.expired(c, id, err) {
		return
	}
	if err != nil || code == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Code not generated, client might already be paired or an error occurred."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code, "sessionId": id})
}

func (h *Handler) authStatus(c *gin.Context) {
	client, err := h.clients.GetClient(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Client session not found."})
			return
		}
		h.fail(c, http.StatusInternalServerError, "Error checking status", err)
		return
	}
	switch client.Status {
	case store.StatusRunning:
		c.JSON(http.StatusOK, gin.H{"status": "paired", "client": client})
	case store.StatusFailed:
		c.JSON(http.StatusGone, expiredBody)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "pending"})
	}
}

// latestQR returns the current QR of a pending attempt. QR payloads rotate
// while the attempt waits, so pollers use this instead of the first one.
func (h *Handler) latestQR(c *gin.Context) {
	id := c.Param("sessionId")
	sess := h.sessions.Get(id)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "No pairing in progress."})
		return
	}
	qr := sess.LatestQR()
	if qr == "" {
		c.JSON(http.StatusOK, gin.H{"status": "pending", "state": sess.State()})
		return
	}
	url, err := qrDataURL(qr)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to render QR code", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr": qr, "qrCodeUrl": url, "sessionId": id, "state": sess.State()})
}

func (h *Handler) cancelAuth(c *gin.Context) {
	if err := h.sessions.Cancel(c.Request.Context(), c.Param("sessionId")); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to cancel pairing", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) await(ctx context.Context, id string, timeout time.Duration, wait func(context.Context, string) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wait(ctx, id)
}

// expired answers 410 and abandons the attempt when the await timed out.
func (h *Handler) expired(c *gin.Context, id string, err error) bool {
	if !errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	h.logger.Info("pairing timed out", zap.String("client", id))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 10*time.Second)
	defer cancel()
	if err := h.sessions.Cancel(ctx, id); err != nil {
		h.logger.Warn("failed to cancel expired pairing", zap.String("client", id), zap.Error(err))
	}
	c.JSON(http.StatusGone, expiredBody)
	return true
}

func qrDataURL(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
