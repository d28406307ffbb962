package whatsapp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ibrasoft/cobranca/internal/domain"
)

// Driver abstracts the underlying session transport (browser automation,
// native protocol bridge). A driver instance backs exactly one session and
// is discarded on teardown.
type Driver interface {
	// Initialize starts the session and returns once startup is underway.
	// Lifecycle transitions arrive through the event callbacks.
	Initialize(ctx context.Context, events Events) error
	Destroy() error
	// Identity returns the connected account description, empty when unknown.
	Identity() (string, error)
	IsRegistered(chatID string) (bool, error)
	SendText(chatID, text string) (string, error)
	SendMedia(chatID, caption string, media Media) (string, error)
}

// DriverFactory builds a fresh driver bound to a persisted session id,
// so credentials survive restarts.
type DriverFactory func(sessionID string) Driver

// Events carries driver lifecycle callbacks into the manager
type Events struct {
	OnQR            func(payload string)
	OnAuthenticated func()
	OnReady         func()
	OnAuthFailure   func(reason string)
	OnDisconnected  func(reason string)
	OnError         func(err error)
}

// Manager runs a locally-owned session as a state machine. All internal
// faults are absorbed into the error state; nothing escapes to the host.
type Manager struct {
	sessionID string
	factory   DriverFactory

	reconnectDelay time.Duration
	errorBackoff   time.Duration

	mu           sync.Mutex
	driver       Driver
	state        string
	ready        bool
	qr           string
	identity     string
	reconnecting bool
	retryTimer   *time.Timer
	closed       bool
}

func NewManager(sessionID string, factory DriverFactory) *Manager {
	return &Manager{
		sessionID:      sessionID,
		factory:        factory,
		reconnectDelay: 5 * time.Second,
		errorBackoff:   10 * time.Second,
		state:          StateUninitialized,
	}
}

// Start kicks off session initialization in the background
func (m *Manager) Start(ctx context.Context) {
	go m.initSession(ctx)
}

// Stop tears the session down and cancels any pending retry
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cancelRetryLocked()
	if m.driver != nil {
		if err := m.driver.Destroy(); err != nil {
			log.Printf("[WhatsApp] erro ao encerrar sessão: %v", err)
		}
		m.driver = nil
	}
	m.ready = false
	m.state = StateUninitialized
}

func (m *Manager) initSession(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WhatsApp] pânico na inicialização: %v", r)
			m.failAndRetry(ctx, fmt.Errorf("init panic: %v", r))
		}
	}()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.cancelRetryLocked()
	if m.driver != nil {
		_ = m.driver.Destroy()
	}
	m.state = StateInitializing
	m.ready = false
	m.qr = ""
	m.identity = ""
	d := m.factory(m.sessionID)
	m.driver = d
	m.mu.Unlock()

	log.Printf("[WhatsApp] inicializando sessão %s", m.sessionID)
	err := d.Initialize(ctx, Events{
		OnQR: func(payload string) {
			m.mu.Lock()
			m.qr = payload
			m.state = StateQRCode
			m.ready = false
			m.mu.Unlock()
			log.Printf("[WhatsApp] QR Code recebido, aguardando leitura")
		},
		OnAuthenticated: func() {
			m.mu.Lock()
			m.state = StateAuthenticated
			m.qr = ""
			m.mu.Unlock()
			log.Printf("[WhatsApp] sessão autenticada")
		},
		OnReady: func() {
			id, _ := d.Identity()
			m.mu.Lock()
			m.state = StateReady
			m.ready = true
			m.qr = ""
			m.identity = id
			m.mu.Unlock()
			log.Printf("[WhatsApp] cliente pronto (%s)", id)
		},
		OnAuthFailure: func(reason string) {
			m.mu.Lock()
			m.state = StateAuthFailure
			m.ready = false
			m.mu.Unlock()
			log.Printf("[WhatsApp] falha de autenticação: %s", reason)
		},
		OnDisconnected: func(reason string) {
			log.Printf("[WhatsApp] desconectado: %s", reason)
			m.mu.Lock()
			m.state = StateDisconnected
			m.ready = false
			m.scheduleRetryLocked(ctx, m.reconnectDelay)
			m.mu.Unlock()
		},
		OnError: func(err error) {
			log.Printf("[WhatsApp] erro na sessão: %v", err)
			m.mu.Lock()
			m.state = StateError
			m.ready = false
			m.scheduleRetryLocked(ctx, m.errorBackoff)
			m.mu.Unlock()
		},
	})
	if err != nil {
		log.Printf("[WhatsApp] falha ao inicializar: %v", err)
		m.failAndRetry(ctx, err)
	}
}

func (m *Manager) failAndRetry(ctx context.Context, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateError
	m.ready = false
	m.scheduleRetryLocked(ctx, m.errorBackoff)
}

// scheduleRetryLocked arms a single cancellable retry timer; a newer
// schedule replaces any pending one.
func (m *Manager) scheduleRetryLocked(ctx context.Context, delay time.Duration) {
	if m.closed {
		return
	}
	m.cancelRetryLocked()
	m.retryTimer = time.AfterFunc(delay, func() {
		m.initSession(ctx)
	})
}

func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) Status(ctx context.Context) StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StatusInfo{
		State:    m.state,
		Ready:    m.ready,
		HasQR:    m.qr != "",
		Identity: m.identity,
		Message:  statusMessage(m.state),
	}
}

func (m *Manager) QRCode(ctx context.Context) (string, error) {
	m.mu.Lock()
	payload := m.qr
	m.mu.Unlock()
	if payload == "" {
		return "", nil
	}
	return renderQR(payload)
}

// Reconnect forces a fresh session. Concurrent calls are serialized:
// while one reconnection is in flight, later calls are refused.
func (m *Manager) Reconnect(ctx context.Context) ReconnectResult {
	m.mu.Lock()
	if m.reconnecting {
		m.mu.Unlock()
		return ReconnectResult{Success: false, Message: "Reconexão já em andamento"}
	}
	m.reconnecting = true
	m.mu.Unlock()

	log.Printf("[WhatsApp] reconexão forçada da sessão %s", m.sessionID)
	m.initSession(ctx)

	m.mu.Lock()
	m.reconnecting = false
	m.mu.Unlock()
	return ReconnectResult{Success: true, Message: "Reconexão iniciada"}
}

func (m *Manager) SendText(ctx context.Context, phone, text string) (SendResult, error) {
	d, err := m.readyDriver()
	if err != nil {
		return SendResult{}, err
	}
	formatted, err := FormatPhone(phone)
	if err != nil {
		return SendResult{}, err
	}
	chatID := ChatID(formatted)
	registered, err := d.IsRegistered(chatID)
	if err != nil {
		return SendResult{}, fmt.Errorf("verificar número %s: %w", formatted, err)
	}
	if !registered {
		return SendResult{}, fmt.Errorf("número %s: %w", formatted, domain.ErrNotRegistered)
	}
	id, err := d.SendText(chatID, text)
	if err != nil {
		return SendResult{}, fmt.Errorf("enviar mensagem para %s: %w", formatted, err)
	}
	return SendResult{Success: true, MessageID: id}, nil
}

func (m *Manager) SendMedia(ctx context.Context, phone, caption string, media Media) (SendResult, error) {
	d, err := m.readyDriver()
	if err != nil {
		return SendResult{}, err
	}
	formatted, err := FormatPhone(phone)
	if err != nil {
		return SendResult{}, err
	}
	id, err := d.SendMedia(ChatID(formatted), caption, media)
	if err != nil {
		return SendResult{}, fmt.Errorf("enviar mídia para %s: %w", formatted, err)
	}
	return SendResult{Success: true, MessageID: id}, nil
}

func (m *Manager) readyDriver() (Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready || m.driver == nil {
		return nil, domain.ErrNotReady
	}
	return m.driver, nil
}
