package handlers

import (
	"github.com/jmoiron/sqlx"

	"agritrade/internal/events"
	"agritrade/internal/repos"
	"agritrade/internal/services"
)

type Deps struct {
	Users *repos.UserRepo

	AuctionHandler      *AuctionHandler
	BidHandler          *BidHandler
	ProductHandler      *ProductHandler
	OrderHandler        *OrderHandler
	NotificationHandler *NotificationHandler
	WSHandler           *WSHandler

	AuctionSvc *services.AuctionService
}

func NewDeps(db *sqlx.DB, sink events.Sink, hub *events.Hub) *Deps {
	userRepo := repos.NewUserRepo(db)
	productRepo := repos.NewProductRepo(db)
	auctionRepo := repos.NewAuctionRepo(db)
	bidRepo := repos.NewBidRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	notifRepo := repos.NewNotificationRepo(db)

	bidSvc := services.NewBidService(bidRepo, orderRepo, notifRepo, sink)
	auctionSvc := services.NewAuctionService(auctionRepo, productRepo, bidSvc)
	productSvc := services.NewProductService(productRepo)
	orderSvc := services.NewOrderService(orderRepo)
	notifSvc := services.NewNotificationService(notifRepo)

	return &Deps{
		Users:               userRepo,
		AuctionHandler:      &AuctionHandler{Auctions: auctionSvc, Bids: bidSvc},
		BidHandler:          &BidHandler{Bids: bidSvc},
		ProductHandler:      &ProductHandler{Products: productSvc},
		OrderHandler:        &OrderHandler{Orders: orderSvc},
		NotificationHandler: &NotificationHandler{Notifs: notifSvc},
		WSHandler:           &WSHandler{Hub: hub},
		AuctionSvc:          auctionSvc,
	}
}
