package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchcore/internal/common"
	matchcorenet "matchcore/internal/net"
)

// priceScale must track internal/net's wire scale.
const priceScale = 1_000_000

func toTicks(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(priceScale)).Round(0).IntPart()
}

func fromTicks(ticks int64) decimal.Decimal {
	return decimal.New(ticks, -6)
}

const reportFixedHeaderLen = 53

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'log']")

	ticker := flag.String("ticker", "AAPL", "Ticker symbol (max 4 chars)")
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	price := flag.String("price", "100.00", "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	orderUUID := flag.String("uuid", "", "UUID of the order to cancel")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	go readReports(conn)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}

	orderType := common.LimitOrder
	if strings.ToLower(*typeStr) == "market" {
		orderType = common.MarketOrder
	}

	priceDec, err := decimal.NewFromString(*price)
	if err != nil {
		log.Fatalf("Invalid price %q: %v", *price, err)
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range parseQuantities(*qtyStr) {
			if err := sendPlaceOrder(conn, *owner, common.Equities, orderType, *ticker, priceDec, qty, side); err != nil {
				log.Printf("Failed to place order (Qty: %s): %v", qty, err)
			} else {
				fmt.Printf("-> Sent %s Order: %s %s @ %s\n", strings.ToUpper(*sideStr), *ticker, qty, priceDec)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderUUID == "" {
			log.Fatal("Error: -uuid is required for cancellation")
		}
		id, err := uuid.Parse(*orderUUID)
		if err != nil {
			log.Fatalf("Invalid uuid %q: %v", *orderUUID, err)
		}
		if err := sendCancelOrder(conn, common.Equities, id); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent Cancel Request for UUID: %s\n", id)
		}

	case "log":
		if err := sendLog(conn); err != nil {
			log.Printf("Failed to send log request: %v", err)
		} else {
			fmt.Println("-> Sent Log Request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func parseQuantities(input string) []decimal.Decimal {
	parts := strings.Split(input, ",")
	var result []decimal.Decimal
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := decimal.NewFromString(p); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

func sendPlaceOrder(conn net.Conn, owner string, asset common.AssetType, orderType common.OrderType, ticker string, price, qty decimal.Decimal, side common.Side) error {
	usernameLen := len(owner)
	totalLen := matchcorenet.BaseMessageHeaderLen + matchcorenet.NewOrderMessageHeaderLen + usernameLen

	buf := make([]byte, totalLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(matchcorenet.NewOrder))

	binary.BigEndian.PutUint16(buf[2:4], uint16(asset))
	binary.BigEndian.PutUint16(buf[4:6], uint16(orderType))

	tickerBytes := make([]byte, 4)
	copy(tickerBytes, ticker)
	copy(buf[6:10], tickerBytes)

	binary.BigEndian.PutUint64(buf[10:18], uint64(toTicks(price)))
	binary.BigEndian.PutUint64(buf[18:26], uint64(toTicks(qty)))

	buf[26] = byte(side)
	buf[27] = uint8(usernameLen)
	copy(buf[28:], owner)

	_, err := conn.Write(buf)
	return err
}

func sendCancelOrder(conn net.Conn, asset common.AssetType, id uuid.UUID) error {
	buf := make([]byte, matchcorenet.BaseMessageHeaderLen+matchcorenet.CancelOrderMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(matchcorenet.CancelOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(asset))
	copy(buf[4:20], id[:])

	_, err := conn.Write(buf)
	return err
}

func sendLog(conn net.Conn) error {
	buf := make([]byte, matchcorenet.BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(matchcorenet.LogBook))
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and parses Report messages from the
// server, printing each as it arrives.
func readReports(conn net.Conn) {
	for {
		headerBuf := make([]byte, reportFixedHeaderLen)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		msgType := matchcorenet.ReportMessageType(headerBuf[0])
		side := common.Side(headerBuf[2])

		qty := fromTicks(int64(binary.BigEndian.Uint64(headerBuf[11:19])))
		price := fromTicks(int64(binary.BigEndian.Uint64(headerBuf[19:27])))
		counterpartyLen := binary.BigEndian.Uint16(headerBuf[27:29])
		errStrLen := binary.BigEndian.Uint32(headerBuf[29:33])

		ticker := strings.TrimRight(string(headerBuf[33:37]), "\x00")
		orderID, _ := uuid.FromBytes(headerBuf[37:53])

		totalVarLen := int(counterpartyLen) + int(errStrLen)
		varBuf := make([]byte, totalVarLen)
		if totalVarLen > 0 {
			if _, err := io.ReadFull(conn, varBuf); err != nil {
				log.Printf("Error reading report body: %v", err)
				return
			}
		}

		errStr := ""
		counterparty := ""
		if errStrLen > 0 {
			errStr = string(varBuf[:errStrLen])
		}
		if counterpartyLen > 0 {
			counterparty = string(varBuf[errStrLen:])
		}

		if msgType == matchcorenet.ErrorReport {
			fmt.Printf("\n[SERVER ERROR] %s\n", errStr)
			continue
		}

		sideStr := "BUY"
		if side == common.Sell {
			sideStr = "SELL"
		}
		fmt.Printf("\n[EXECUTION] Match: %s %s | Qty: %s | Price: %s | vs: %s | UUID: %s\n",
			sideStr, ticker, qty, price, counterparty, orderID)
	}
}
