package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchcore/internal/common"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short for specified username length")
)

// priceScale fixes the wire's decimal precision: a price field carries a
// scaled int64 tick count rather than a binary float, so encode/decode is
// lossless for any price the matching core itself can represent at this
// granularity.
const priceScale = 1_000_000

func decimalToTicks(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(priceScale)).Round(0).IntPart()
}

func ticksToDecimal(ticks int64) decimal.Decimal {
	return decimal.New(ticks, -6)
}

type MessageType int

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	LogBook
)

type ReportMessageType int

const (
	ExecutionReport ReportMessageType = iota
	ErrorReport
)

type Message interface {
	GetType() MessageType
}

// Message format constants.
const (
	BaseMessageHeaderLen        = 2
	NewOrderMessageHeaderLen    = 2 + 2 + 4 + 8 + 8 + 1 + 1
	CancelOrderMessageHeaderLen = 2 + 16
)

// BaseMessage is the generic two-byte type header every inbound message
// starts with.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func parseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, errors.New("message too short to contain header")
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(msg)
	case CancelOrder:
		return parseCancelOrder(msg)
	case LogBook:
		return BaseMessage{TypeOf: LogBook}, nil
	default:
		return BaseMessage{}, ErrInvalidMessageType
	}
}

// NewOrderMessage is the wire form of a new-order request: fixed header
// fields followed by a variable-length username.
type NewOrderMessage struct {
	BaseMessage
	AssetType   common.AssetType // 2 bytes
	OrderType   common.OrderType // 2 bytes
	Ticker      string           // 4 bytes
	LimitPrice  int64            // 8 bytes, scaled ticks
	Quantity    int64            // 8 bytes, scaled ticks
	Side        common.Side      // 1 byte
	UsernameLen uint8            // 1 byte
	Username    string           // n bytes
}

// Order converts the wire message into a domain order with a freshly
// minted id. Quantity and price are descaled from wire ticks back to
// decimal.Decimal.
func (o *NewOrderMessage) Order() (*common.Order, error) {
	return &common.Order{
		ID:        uuid.New(),
		AssetType: o.AssetType,
		OrderType: o.OrderType,
		Ticker:    o.Ticker,
		Price:     ticksToDecimal(o.LimitPrice),
		Quantity:  ticksToDecimal(o.Quantity),
		Side:      o.Side,
		Owner:     o.Username,
		Timestamp: time.Now(),
	}, nil
}

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	if len(msg) < NewOrderMessageHeaderLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}

	m := NewOrderMessage{BaseMessage: BaseMessage{TypeOf: NewOrder}}
	m.AssetType = common.AssetType(binary.BigEndian.Uint16(msg[0:2]))
	m.OrderType = common.OrderType(binary.BigEndian.Uint16(msg[2:4]))
	m.Ticker = string(msg[4:8])
	m.LimitPrice = int64(binary.BigEndian.Uint64(msg[8:16]))
	m.Quantity = int64(binary.BigEndian.Uint64(msg[16:24]))
	m.Side = common.Side(msg[24])
	m.UsernameLen = msg[25]

	expectedTotalLen := int(NewOrderMessageHeaderLen) + int(m.UsernameLen)
	if len(msg) < expectedTotalLen {
		return NewOrderMessage{}, ErrMessageTooShort
	}
	m.Username = string(msg[26 : 26+m.UsernameLen])

	return m, nil
}

// CancelOrderMessage is the wire form of a cancel request.
type CancelOrderMessage struct {
	BaseMessage
	AssetType common.AssetType // 2 bytes
	OrderUUID uuid.UUID        // 16 bytes
}

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < CancelOrderMessageHeaderLen {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	m := CancelOrderMessage{BaseMessage: BaseMessage{TypeOf: CancelOrder}}
	m.AssetType = common.AssetType(binary.BigEndian.Uint16(msg[0:2]))
	copy(m.OrderUUID[:], msg[2:18])
	return m, nil
}

// Report is the wire form of both outbound report kinds: an execution
// leg, or an error. Book snapshots are a separate concern, carried as
// JSON by internal/broadcast over its own transport rather than this
// per-order framing.
type Report struct {
	MessageType     ReportMessageType // 1 byte
	AssetType       common.AssetType  // 1 byte
	Side            common.Side       // 1 byte
	Timestamp       uint64            // 8 bytes
	Quantity        int64             // 8 bytes, scaled ticks
	Price           int64             // 8 bytes, scaled ticks
	CounterpartyLen uint16            // 2 bytes
	ErrStrLen       uint32            // 4 bytes
	Ticker          string            // 4 bytes
	UUID            uuid.UUID         // 16 bytes
	Err             string            // n bytes
	Counterparty    string            // n bytes
}

const reportFixedHeaderLen = 1 + 1 + 1 + 8 + 8 + 8 + 2 + 4 + 4 + 16

// Serialize converts the report to its wire form.
func (r *Report) Serialize() ([]byte, error) {
	totalSize := reportFixedHeaderLen + len(r.Err) + len(r.Counterparty)

	buf := make([]byte, totalSize)
	buf[0] = byte(r.MessageType)
	buf[1] = byte(r.AssetType)
	buf[2] = byte(r.Side)
	binary.BigEndian.PutUint64(buf[3:11], r.Timestamp)
	binary.BigEndian.PutUint64(buf[11:19], uint64(r.Quantity))
	binary.BigEndian.PutUint64(buf[19:27], uint64(r.Price))
	binary.BigEndian.PutUint16(buf[27:29], r.CounterpartyLen)
	binary.BigEndian.PutUint32(buf[29:33], r.ErrStrLen)

	tickerBuf := make([]byte, 4)
	copy(tickerBuf, r.Ticker)
	copy(buf[33:37], tickerBuf)
	copy(buf[37:53], r.UUID[:])

	offset := reportFixedHeaderLen
	if r.ErrStrLen > 0 {
		copy(buf[offset:], r.Err)
	}
	offset += int(r.ErrStrLen)
	if r.CounterpartyLen > 0 {
		copy(buf[offset:], r.Counterparty)
	}
	return buf, nil
}

// generateWireTradeReports builds both legs' execution reports for one
// trade: a buyer-facing report naming the seller as counterparty, and
// vice versa.
func generateWireTradeReports(assetType common.AssetType, ticker string, trade common.Trade, buyer, seller *common.Order) ([]byte, []byte, error) {
	build := func(self, counterparty *common.Order) Report {
		return Report{
			MessageType:     ExecutionReport,
			AssetType:       assetType,
			Side:            self.Side,
			Timestamp:       uint64(trade.Timestamp.Unix()),
			Quantity:        decimalToTicks(trade.Quantity),
			Price:           decimalToTicks(trade.Price),
			CounterpartyLen: uint16(len(counterparty.Owner)),
			Ticker:          ticker,
			UUID:            self.ID,
			Counterparty:    counterparty.Owner,
		}
	}

	buyerReport := build(buyer, seller)
	sellerReport := build(seller, buyer)

	b1, err := buyerReport.Serialize()
	if err != nil {
		return nil, nil, err
	}
	b2, err := sellerReport.Serialize()
	if err != nil {
		return nil, nil, err
	}
	return b1, b2, nil
}

func generateWireErrorReport(err error) ([]byte, error) {
	errStr := fmt.Sprintf("%v", err)
	report := Report{
		MessageType: ErrorReport,
		Timestamp:   uint64(time.Now().UnixNano()),
		ErrStrLen:   uint32(len(errStr)),
		Err:         errStr,
	}
	return report.Serialize()
}
