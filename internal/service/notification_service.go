package service

import (
	"context"
	"encoding/json"
	"fmt"

	"studhub/internal/models"
	"studhub/internal/repository"
	"studhub/internal/ws"

	"go.uber.org/zap"
)

// NotificationService records a notification row and pushes it over the
// available transports (FCM, live websocket). Delivery is best effort
// everywhere: callers treat a returned error as "record not written",
// push failures are swallowed here.
type NotificationService struct {
	repo     *repository.NotificationRepository
	userRepo *repository.UserRepository
	fcm      *FCMService
	hub      *ws.Hub
	log      *zap.Logger
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, fcm *FCMService, hub *ws.Hub, log *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, fcm: fcm, hub: hub, log: log}
}

func (s *NotificationService) Notify(userID uint, notifType, title, body string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	n := &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   dataJSON,
	}
	if err := s.repo.Create(n); err != nil {
		return err
	}
	s.push(userID, notifType, title, body, data)
	return nil
}

func (s *NotificationService) push(userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.hub != nil {
		s.hub.BroadcastToUser(userID, map[string]interface{}{
			"type":  notifType,
			"title": title,
			"body":  body,
			"data":  data,
		})
	}
	if s.fcm == nil || s.userRepo == nil {
		return
	}
	u, err := s.userRepo.GetByID(userID)
	if err != nil || u.FCMToken == "" {
		return
	}
	if err := s.fcm.Send(context.Background(), u.FCMToken, title, body, flatten(data)); err != nil {
		s.log.Debug("fcm push failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (s *NotificationService) NotifyPaymentApproved(senderID, paymentID uint, amountCents int64) error {
	return s.Notify(senderID, "PAYMENT_APPROVED", "Payment approved",
		fmt.Sprintf("Your funding request was approved for %d cents", amountCents),
		map[string]interface{}{"payment_id": paymentID, "amount_cents": amountCents})
}

func (s *NotificationService) NotifyPaymentRejected(senderID, paymentID uint, reason string) error {
	body := "Your funding request was rejected"
	if reason != "" {
		body += ": " + reason
	}
	return s.Notify(senderID, "PAYMENT_REJECTED", "Payment rejected", body,
		map[string]interface{}{"payment_id": paymentID, "reason": reason})
}

func flatten(data map[string]interface{}) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
