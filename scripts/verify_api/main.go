package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rindah89/barter/pkg/chatclient"
	"github.com/rindah89/barter/pkg/logging"
	"github.com/rindah89/barter/pkg/media"
	"github.com/rindah89/barter/pkg/model"
)

// verify_api walks a buyer and a seller through one conversation against a
// running API and fails loudly on the first unexpected response.
func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	flag.Parse()

	logger := logging.New(logging.Config{ServiceName: "verify-api", Environment: "development", Level: "info"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	buyer := chatclient.New(*apiAddr, &http.Client{Timeout: 10 * time.Second})
	seller := chatclient.New(*apiAddr, &http.Client{Timeout: 10 * time.Second})

	suffix := fmt.Sprint(time.Now().UnixNano())
	buyerSess, err := buyer.Login(ctx, "buyer-"+suffix)
	if err != nil {
		logger.Fatal().Err(err).Msg("buyer login failed")
	}
	sellerSess, err := seller.Login(ctx, "seller-"+suffix)
	if err != nil {
		logger.Fatal().Err(err).Msg("seller login failed")
	}

	room, err := buyer.ResolveOrCreateRoom(ctx, []string{buyerSess.UserID, sellerSess.UserID})
	if err != nil {
		logger.Fatal().Err(err).Msg("create room failed")
	}
	again, err := seller.ResolveOrCreateRoom(ctx, []string{sellerSess.UserID, buyerSess.UserID})
	if err != nil || again.ID != room.ID {
		logger.Fatal().Err(err).Msg("room was not reused for the same participants")
	}
	logger.Info().Str("room_id", room.ID).Msg("room resolved")

	msg, err := buyer.Send(ctx, model.SendRequest{
		RoomID:   room.ID,
		SenderID: buyerSess.UserID,
		Type:     model.TypeText,
		Content:  model.StringPtr("Would you trade for my bike?"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("send failed")
	}

	url, err := buyer.Upload(ctx, media.CategoryImages, "bike.txt", "text/plain", strings.NewReader("pretend this is a photo"))
	if err != nil {
		logger.Fatal().Err(err).Msg("upload failed")
	}
	if _, err := buyer.Send(ctx, model.SendRequest{
		RoomID:   room.ID,
		SenderID: buyerSess.UserID,
		Type:     model.TypeImage,
		MediaURI: &url,
	}); err != nil {
		logger.Fatal().Err(err).Msg("send image failed")
	}

	rooms, err := seller.Rooms(ctx)
	if err != nil || len(rooms) == 0 || rooms[0].UnreadCount != 2 {
		logger.Fatal().Err(err).Interface("rooms", rooms).Msg("seller should have two unread messages")
	}

	if err := seller.MarkRead(ctx, room.ID, sellerSess.UserID); err != nil {
		logger.Fatal().Err(err).Msg("mark read failed")
	}
	history, err := buyer.List(ctx, room.ID)
	if err != nil || len(history) != 2 || !history[0].ReadByAll {
		logger.Fatal().Err(err).Msg("history should show both messages read")
	}

	if _, err := buyer.SoftDelete(ctx, msg.ID, buyerSess.UserID); err != nil {
		logger.Fatal().Err(err).Msg("delete failed")
	}

	if err := seller.Heartbeat(ctx, sellerSess.UserID); err != nil {
		logger.Fatal().Err(err).Msg("heartbeat failed")
	}
	online, err := buyer.IsOnline(ctx, sellerSess.UserID)
	if err != nil || !online {
		logger.Fatal().Err(err).Msg("seller should be online")
	}
	if err := seller.SetOffline(ctx, sellerSess.UserID); err != nil {
		logger.Fatal().Err(err).Msg("set offline failed")
	}

	logger.Info().Msg("API verified")
}
