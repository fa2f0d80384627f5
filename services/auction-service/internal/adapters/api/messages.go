package api

import (
	"errors"
	"fmt"
	"math"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/floroz/hammer/services/auction-service/internal/domain/auctions"
	"github.com/floroz/hammer/services/auction-service/internal/domain/ratings"
)

// Messages are google.protobuf.Struct values; these helpers read typed fields out of them.

func invalidArgument(format string, args ...any) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

func stringField(msg *structpb.Struct, name string) (string, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return "", invalidArgument("%s is required", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", invalidArgument("%s must be a string", name)
	}
	return s.StringValue, nil
}

func uuidField(msg *structpb.Struct, name string) (uuid.UUID, error) {
	raw, err := stringField(msg, name)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidArgument("invalid %s", name)
	}
	return id, nil
}

func amountField(msg *structpb.Struct, name string) (int64, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return 0, invalidArgument("%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, invalidArgument("%s must be a whole number of cents", name)
	}
	if math.Abs(n.NumberValue) > float64(auctions.MaxAmount) {
		return 0, invalidArgument("%s must not exceed %d", name, auctions.MaxAmount)
	}
	return int64(n.NumberValue), nil
}

func optionalAmountField(msg *structpb.Struct, name string) (*int64, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	n, err := amountField(msg, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func boolField(msg *structpb.Struct, name string) bool {
	return msg.GetFields()[name].GetBoolValue()
}

func timeField(msg *structpb.Struct, name string) (time.Time, error) {
	raw, err := stringField(msg, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, invalidArgument("invalid %s format", name)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func newStruct(fields map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// auctionFields is the public view of an auction. Proxy maxima are never part of it.
func auctionFields(a *auctions.Auction) map[string]any {
	var buyNow any
	if a.BuyNowPrice != nil {
		buyNow = *a.BuyNowPrice
	}
	return map[string]any{
		"id":                    a.ID.String(),
		"seller_id":             a.SellerID.String(),
		"title":                 a.Title,
		"start_price":           a.StartPrice,
		"step_price":            a.StepPrice,
		"buy_now_price":         buyNow,
		"status":                string(a.Status),
		"end_at":                formatTime(a.EndAt),
		"auto_extend":           a.AutoExtend,
		"allow_unrated_bidders": a.AllowUnratedBidders,
		"current_price":         a.CurrentPrice,
		"current_winner_id":     optionalID(a.CurrentWinnerID),
		"min_allowed_max":       a.MinAllowedMax(),
		"extension_count":       int64(a.ExtensionCount),
		"created_at":            formatTime(a.CreatedAt),
	}
}

func outcomeFields(o auctions.BidOutcome) map[string]any {
	return map[string]any{
		"outcome":           string(o.Kind),
		"auction_id":        o.AuctionID.String(),
		"current_price":     o.CurrentPrice,
		"current_winner_id": optionalID(o.CurrentWinnerID),
		"end_at":            formatTime(o.EndAt),
		"extended":          o.Extended,
	}
}

func statsFields(s ratings.Stats) map[string]any {
	return map[string]any{
		"positive": s.Positive,
		"negative": s.Negative,
		"total":    s.Total,
		"percent":  s.Percent,
	}
}

// toConnectError maps domain errors onto connect codes
func toConnectError(err error) *connect.Error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, auctions.ErrInvalidAmount),
		errors.Is(err, auctions.ErrInvalidAuction),
		errors.Is(err, ratings.ErrInvalidScore):
		code = connect.CodeInvalidArgument
	case errors.Is(err, auctions.ErrAuctionNotFound),
		errors.Is(err, auctions.ErrBidderNotFound),
		errors.Is(err, auctions.ErrProxyBidNotFound),
		errors.Is(err, auctions.ErrSettlementNotFound),
		errors.Is(err, ratings.ErrUserNotFound),
		errors.Is(err, ratings.ErrSettlementNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, auctions.ErrSelfBidForbidden),
		errors.Is(err, auctions.ErrBidderBlocked),
		errors.Is(err, auctions.ErrIneligibleRating),
		errors.Is(err, auctions.ErrNotSeller),
		errors.Is(err, auctions.ErrCannotBlockSelf),
		errors.Is(err, ratings.ErrNotParticipant):
		code = connect.CodePermissionDenied
	case errors.Is(err, auctions.ErrAuctionNotActive),
		errors.Is(err, auctions.ErrAuctionExpired),
		errors.Is(err, auctions.ErrBuyNowUnavailable),
		errors.Is(err, auctions.ErrAuctionHasBids):
		code = connect.CodeFailedPrecondition
	}
	return connect.NewError(code, err)
}

// outcomeResponse turns a rejection into a connect error carrying the reason
func outcomeResponse(o auctions.BidOutcome) (*connect.Response[structpb.Struct], error) {
	if err := o.Err(); err != nil {
		cerr := toConnectError(err)
		cerr.Meta().Set(rejectionReasonHeader, string(o.Reason))
		return nil, cerr
	}
	return newStruct(outcomeFields(o))
}
