package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/common"
	"matchcore/internal/engine"
	"matchcore/internal/workerpool"
)

const (
	maxRecvSize        = 4 * 1024
	defaultConnTimeout = time.Second
)

var ErrImproperConversion = errors.New("improper type conversion")

// ClientSession tracks one connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a decoded message to the address of the connection
// that sent it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Engine is the order-handling surface the wire server drives. Satisfied
// by *engine.Harness.
type Engine interface {
	PlaceOrder(assetType common.AssetType, order *common.Order) ([]common.Trade, error)
	CancelOrder(assetType common.AssetType, id uuid.UUID) (bool, error)
	LogBook()
}

// Server is the binary TCP front end for the matching core: it decodes
// NewOrder/CancelOrder/LogBook requests, drives Engine, and reports
// executions and errors back to the owning connections.
type Server struct {
	address string
	port    int
	engine  Engine
	pool    workerpool.WorkerPool
	cancel  context.CancelFunc

	sessionsMu     sync.Mutex
	clientSessions map[string]ClientSession // keyed by connection address
	ownerAddress   map[string]string        // owner username -> connection address

	clientMessages chan ClientMessage
}

// New constructs a Server bound to address:port, driving engine with a
// pool of workerPoolSize connection handlers.
func New(address string, port, workerPoolSize int, engine Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         engine,
		pool:           workerpool.NewWorkerPool(workerPoolSize),
		clientSessions: make(map[string]ClientSession),
		ownerAddress:   make(map[string]string),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run starts the listener, the worker pool, and the session handler, and
// blocks accepting connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	// Accept does not observe ctx; closing the listener unblocks it.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				log.Error().Err(err).Msg("error accepting client")
				continue
			}

			log.Info().Str("address", conn.RemoteAddr().String()).Msg("new client connected")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// ReportTrade implements engine.Reporter: it routes the buyer's and
// seller's legs of exec to whichever connections registered those
// owners, if any are currently connected.
func (s *Server) ReportTrade(exec engine.Execution) {
	assetType := exec.Trade.AssetType
	ticker := exec.Buyer.Ticker

	buyerReport, sellerReport, err := generateWireTradeReports(assetType, ticker, exec.Trade, exec.Buyer, exec.Seller)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode execution reports")
		return
	}

	s.writeToOwner(exec.Buyer.Owner, buyerReport)
	s.writeToOwner(exec.Seller.Owner, sellerReport)
}

// ReportError implements engine.Reporter: a rejected order is reported
// back to the owner that submitted it, if still connected.
func (s *Server) ReportError(owner string, reportErr error) {
	report, err := generateWireErrorReport(reportErr)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode error report")
		return
	}
	s.writeToOwner(owner, report)
}

func (s *Server) writeToOwner(owner string, payload []byte) {
	s.sessionsMu.Lock()
	address, ok := s.ownerAddress[owner]
	var session ClientSession
	if ok {
		session, ok = s.clientSessions[address]
	}
	s.sessionsMu.Unlock()

	if !ok {
		return
	}
	if _, err := session.conn.Write(payload); err != nil {
		log.Error().Err(err).Str("owner", owner).Msg("failed to deliver report")
		s.deleteClientSession(address)
	}
}

func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			if err := s.handleMessage(message); err != nil {
				log.Error().
					Err(err).
					Str("clientAddress", message.clientAddress).
					Msg("error handling message")
			}
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) error {
	switch message.message.GetType() {
	case NewOrder:
		order, ok := message.message.(NewOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		ord, err := order.Order()
		if err != nil {
			return err
		}
		s.registerOwner(ord.Owner, message.clientAddress)

		if _, err := s.engine.PlaceOrder(order.AssetType, ord); err != nil {
			s.ReportError(ord.Owner, err)
			log.Error().Err(err).Str("clientAddress", message.clientAddress).Msg("error while placing order")
		}
	case CancelOrder:
		order, ok := message.message.(CancelOrderMessage)
		if !ok {
			return ErrInvalidMessageType
		}
		cancelled, err := s.engine.CancelOrder(order.AssetType, order.OrderUUID)
		if err != nil {
			log.Error().
				Err(err).
				Str("clientAddress", message.clientAddress).
				Str("uuid", order.OrderUUID.String()).
				Msg("error while cancelling order")
			break
		}
		if !cancelled {
			log.Debug().
				Str("clientAddress", message.clientAddress).
				Str("uuid", order.OrderUUID.String()).
				Msg("cancel request for unknown order id")
		}
	case LogBook:
		s.engine.LogBook()
	default:
		log.Error().
			Int("messageType", int(message.message.GetType())).
			Msg("invalid message type")
		return ErrInvalidMessageType
	}
	return nil
}

// handleConnection reads the next message off conn, decodes it, and hands
// it to sessionHandler, then re-queues conn so the pool reads its next
// message. Any error returned from here is fatal to the worker.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("failed setting deadline")
		s.deleteClientSession(conn.RemoteAddr().String())
		conn.Close()
		return nil
	}

	buffer := make([]byte, maxRecvSize)
	select {
	case <-t.Dying():
		conn.Close()
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error reading from connection")
			s.deleteClientSession(conn.RemoteAddr().String())
			conn.Close()
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("error parsing message")
			s.pool.AddTask(conn)
			return nil
		}

		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: conn.RemoteAddr().String(),
		}

		s.pool.AddTask(conn)
	}
	return nil
}

func (s *Server) addClientSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.clientSessions, address)
}

func (s *Server) registerOwner(owner, address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.ownerAddress[owner] = address
}
