package api

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/hammer/pkg/auth"
	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

const (
	ServiceName           = "hammer.auction.v1.AuctionService"
	rejectionReasonHeader = "Rejection-Reason"
)

// AuctionService is the controller surface the handler needs
type AuctionService interface {
	CreateAuction(ctx context.Context, cmd auctions.CreateAuctionCommand) (*auctions.Auction, error)
	SubmitProxyBid(ctx context.Context, cmd auctions.PlaceProxyBidCommand) (auctions.BidOutcome, error)
	BuyNow(ctx context.Context, cmd auctions.BuyNowCommand) (auctions.BidOutcome, error)
	BlockBidder(ctx context.Context, cmd auctions.BlockBidderCommand) (*auctions.Auction, error)
	CancelAuction(ctx context.Context, cmd auctions.CancelAuctionCommand) (*auctions.Auction, error)
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error)
	GetBidHistory(ctx context.Context, auctionID uuid.UUID) ([]auctions.BidHistoryItem, error)
	GetMyProxyBid(ctx context.Context, auctionID, bidderID uuid.UUID) (*auctions.ProxyBid, error)
	GetSettlement(ctx context.Context, auctionID uuid.UUID) (*auctions.Settlement, error)
}

// RatingService is the rating surface the handler needs
type RatingService interface {
	GetRatingStats(ctx context.Context, userID uuid.UUID) (ratings.Stats, error)
	RateCounterparty(ctx context.Context, cmd ratings.RateCommand) (*ratings.Rating, error)
}

type AuctionServiceHandler struct {
	auctions AuctionService
	ratings  RatingService
}

func NewAuctionServiceHandler(auctionService AuctionService, ratingService RatingService) *AuctionServiceHandler {
	return &AuctionServiceHandler{
		auctions: auctionService,
		ratings:  ratingService,
	}
}

type unaryFunc = func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

// NewHandler mounts every procedure under /hammer.auction.v1.AuctionService/.
// authInterceptor guards all procedures except the public reads.
func NewHandler(h *AuctionServiceHandler, authInterceptor connect.Interceptor, opts ...connect.HandlerOption) (string, http.Handler) {
	protected := map[string]unaryFunc{
		"CreateAuction":    h.CreateAuction,
		"PlaceProxyBid":    h.PlaceProxyBid,
		"BuyNow":           h.BuyNow,
		"BlockBidder":      h.BlockBidder,
		"CancelAuction":    h.CancelAuction,
		"GetMyProxyBid":    h.GetMyProxyBid,
		"GetSettlement":    h.GetSettlement,
		"RateCounterparty": h.RateCounterparty,
	}
	public := map[string]unaryFunc{
		"GetAuction":     h.GetAuction,
		"GetBidHistory":  h.GetBidHistory,
		"GetRatingStats": h.GetRatingStats,
	}

	mux := http.NewServeMux()
	protectedOpts := append([]connect.HandlerOption{connect.WithInterceptors(authInterceptor)}, opts...)
	for method, fn := range protected {
		path := procedure(method)
		mux.Handle(path, connect.NewUnaryHandler(path, fn, protectedOpts...))
	}
	for method, fn := range public {
		path := procedure(method)
		mux.Handle(path, connect.NewUnaryHandler(path, fn, opts...))
	}
	return "/" + ServiceName + "/", mux
}

func procedure(method string) string {
	return "/" + ServiceName + "/" + method
}

// callerID returns the authenticated user, set by the auth interceptor
func callerID(ctx context.Context) (uuid.UUID, error) {
	id, ok := auth.GetUserID(ctx)
	if !ok {
		return uuid.Nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing user"))
	}
	return id, nil
}

func (h *AuctionServiceHandler) CreateAuction(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sellerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	title, err := stringField(req.Msg, "title")
	if err != nil {
		return nil, err
	}
	startPrice, err := amountField(req.Msg, "start_price")
	if err != nil {
		return nil, err
	}
	stepPrice, err := amountField(req.Msg, "step_price")
	if err != nil {
		return nil, err
	}
	buyNow, err := optionalAmountField(req.Msg, "buy_now_price")
	if err != nil {
		return nil, err
	}
	endAt, err := timeField(req.Msg, "end_at")
	if err != nil {
		return nil, err
	}

	a, err := h.auctions.CreateAuction(ctx, auctions.CreateAuctionCommand{
		SellerID:            sellerID,
		Title:               title,
		StartPrice:          startPrice,
		StepPrice:           stepPrice,
		BuyNowPrice:         buyNow,
		EndAt:               endAt,
		AutoExtend:          boolField(req.Msg, "auto_extend"),
		AllowUnratedBidders: boolField(req.Msg, "allow_unrated_bidders"),
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return newStruct(map[string]any{"auction": auctionFields(a)})
}

func (h *AuctionServiceHandler) PlaceProxyBid(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	bidderID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}
	maxAmount, err := amountField(req.Msg, "max_amount")
	if err != nil {
		return nil, err
	}

	outcome, err := h.auctions.SubmitProxyBid(ctx, auctions.PlaceProxyBidCommand{
		AuctionID: auctionID,
		BidderID:  bidderID,
		MaxAmount: maxAmount,
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return outcomeResponse(outcome)
}

func (h *AuctionServiceHandler) BuyNow(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	buyerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}

	outcome, err := h.auctions.BuyNow(ctx, auctions.BuyNowCommand{AuctionID: auctionID, BuyerID: buyerID})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return outcomeResponse(outcome)
}

func (h *AuctionServiceHandler) BlockBidder(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sellerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}
	bidderID, err := uuidField(req.Msg, "bidder_id")
	if err != nil {
		return nil, err
	}

	a, err := h.auctions.BlockBidder(ctx, auctions.BlockBidderCommand{AuctionID: auctionID, SellerID: sellerID, BidderID: bidderID})
	if err != nil {
		return nil, toConnectError(err)
	}
	return newStruct(map[string]any{"auction": auctionFields(a)})
}

func (h *AuctionServiceHandler) CancelAuction(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	sellerID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}

	a, err := h.auctions.CancelAuction(ctx, auctions.CancelAuctionCommand{AuctionID: auctionID, SellerID: sellerID})
	if err != nil {
		return nil, toConnectError(err)
	}
	return newStruct(map[string]any{"auction": auctionFields(a)})
}

func (h *AuctionServiceHandler) GetAuction(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}

	a, err := h.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return newStruct(map[string]any{"auction": auctionFields(a)})
}

func (h *AuctionServiceHandler) GetBidHistory(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}

	history, err := h.auctions.GetBidHistory(ctx, auctionID)
	if err != nil {
		return nil, toConnectError(err)
	}

	entries := make([]any, len(history))
	for i, item := range history {
		entries[i] = map[string]any{
			"bidder_id":      item.BidderID.String(),
			"amount":         item.Amount,
			"created_at":     formatTime(item.CreatedAt),
			"bidder_blocked": item.BidderBlocked,
		}
	}
	return newStruct(map[string]any{"entries": entries})
}

func (h *AuctionServiceHandler) GetMyProxyBid(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	bidderID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}

	bid, err := h.auctions.GetMyProxyBid(ctx, auctionID, bidderID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return newStruct(map[string]any{
		"auction_id": bid.AuctionID.String(),
		"max_amount": bid.MaxAmount,
		"updated_at": formatTime(bid.UpdatedAt),
	})
}

// GetSettlement is visible to the two parties only
func (h *AuctionServiceHandler) GetSettlement(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}

	s, err := h.auctions.GetSettlement(ctx, auctionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if userID != s.SellerID && userID != s.WinnerID {
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("not a party to this settlement"))
	}
	return newStruct(map[string]any{
		"auction_id":  s.AuctionID.String(),
		"seller_id":   s.SellerID.String(),
		"winner_id":   s.WinnerID.String(),
		"final_price": s.FinalPrice,
		"status":      string(s.Status),
	})
}

func (h *AuctionServiceHandler) GetRatingStats(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	userID, err := uuidField(req.Msg, "user_id")
	if err != nil {
		return nil, err
	}

	stats, err := h.ratings.GetRatingStats(ctx, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return newStruct(statsFields(stats))
}

func (h *AuctionServiceHandler) RateCounterparty(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fromUserID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	auctionID, err := uuidField(req.Msg, "auction_id")
	if err != nil {
		return nil, err
	}
	toUserID, err := uuidField(req.Msg, "to_user_id")
	if err != nil {
		return nil, err
	}
	score, err := amountField(req.Msg, "score")
	if err != nil {
		return nil, err
	}

	comment := ""
	if v, ok := req.Msg.GetFields()["comment"]; ok {
		comment = v.GetStringValue()
	}

	rating, err := h.ratings.RateCounterparty(ctx, ratings.RateCommand{
		AuctionID:  auctionID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Score:      int(score),
		Comment:    comment,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return newStruct(map[string]any{
		"id":         rating.ID.String(),
		"auction_id": rating.AuctionID.String(),
		"to_user_id": rating.ToUserID.String(),
		"score":      int64(rating.Score),
	})
}
