package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchcore/internal/common"
)

// Execution pairs a produced Trade with the two live order pointers that
// produced it, for collaborators (the wire reporter, the trade sink) that
// need more than the bare Trade record — e.g. to route an execution
// report to an owner's session. Buyer/Seller remain valid structs even
// after a resting order is fully filled and popped from the book, since
// popping only detaches the pointer from the book's structures.
type Execution struct {
	Trade  common.Trade
	Buyer  *common.Order
	Seller *common.Order
}

// Match is the matching kernel: a pure function, with respect to I/O,
// that crosses incoming against resting liquidity, producing trades in
// match order (best price first, then arrival order on ties) and resting
// any LIMIT residual. It cannot fail on valid input; the only error is
// synchronous rejection of invalid input, before any state change.
func Match(book *OrderBook, incoming *common.Order) ([]common.Trade, error) {
	executions, err := match(book, incoming)
	if err != nil {
		return nil, err
	}
	trades := make([]common.Trade, len(executions))
	for i, e := range executions {
		trades[i] = e.Trade
	}
	return trades, nil
}

func match(book *OrderBook, incoming *common.Order) ([]Execution, error) {
	if err := incoming.Validate(); err != nil {
		return nil, err
	}

	var executions []Execution
	for incoming.Quantity.IsPositive() {
		opposite, ok := bestOpposite(book, incoming.Side)
		if !ok || !crosses(incoming, opposite) {
			break
		}

		fill := decimal.Min(incoming.Quantity, opposite.Quantity)
		trade := common.Trade{
			ID:        uuid.New(),
			AssetType: incoming.AssetType,
			Price:     opposite.Price, // the passive side's price, always
			Quantity:  fill,
			Timestamp: time.Now(),
		}

		buyer, seller := incoming, opposite
		if incoming.Side == common.Sell {
			buyer, seller = opposite, incoming
		}
		trade.BuyerOrderID = buyer.ID
		trade.SellerOrderID = seller.ID

		incoming.Quantity = incoming.Quantity.Sub(fill)
		opposite.Quantity = opposite.Quantity.Sub(fill)

		executions = append(executions, Execution{Trade: trade, Buyer: buyer, Seller: seller})

		if opposite.Done() {
			popOpposite(book, incoming.Side)
		}
	}

	if incoming.Quantity.IsPositive() && incoming.OrderType == common.LimitOrder {
		if err := book.Add(incoming); err != nil {
			return executions, err
		}
	}
	return executions, nil
}

func bestOpposite(book *OrderBook, side common.Side) (*common.Order, bool) {
	if side == common.Buy {
		return book.BestAsk()
	}
	return book.BestBid()
}

func popOpposite(book *OrderBook, side common.Side) {
	if side == common.Buy {
		book.PopBestAsk()
		return
	}
	book.PopBestBid()
}

// crosses implements the crossing predicate. A MARKET order aggresses at
// any resting price on its side — an effectively unbounded price, modeled
// here as a special case rather than a literal infinite decimal.Decimal.
func crosses(incoming, opposite *common.Order) bool {
	if incoming.OrderType == common.MarketOrder {
		return true
	}
	if incoming.Side == common.Buy {
		return incoming.Price.GreaterThanOrEqual(opposite.Price)
	}
	return incoming.Price.LessThanOrEqual(opposite.Price)
}
