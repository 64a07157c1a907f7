package mock

import (
	"sync"

	"github.com/yourorg/reader-bridge/internal/host"
	"github.com/yourorg/reader-bridge/internal/sdk"
)

// Launch records one call to a launching entry point.
type Launch struct {
	Method      string
	Activity    host.Activity
	RequestCode int
	Login       *sdk.LoginRequest
	Payment     *sdk.PaymentRequest
}

// Terminal is a scriptable sdk.Terminal. Each primitive calls its Func field
// when set; otherwise it behaves like an idle SDK: launches are recorded and
// never complete on their own, synchronous calls succeed.
type Terminal struct {
	InitFunc               func(act host.Activity) error
	LogoutFunc             func() error
	PrepareFunc            func() error
	OnLaunch               func(l Launch)
	TipOnCardReaderEnabled bool

	mu       sync.Mutex
	loggedIn bool
	launches []Launch
	calls    map[string]int
}

// NewTerminal creates an idle mock terminal.
func NewTerminal() *Terminal {
	return &Terminal{calls: make(map[string]int)}
}

func (m *Terminal) count(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

func (m *Terminal) launch(l Launch) {
	m.count(l.Method)
	m.mu.Lock()
	m.launches = append(m.launches, l)
	onLaunch := m.OnLaunch
	m.mu.Unlock()
	if onLaunch != nil {
		onLaunch(l)
	}
}

// Init implements sdk.Terminal.
func (m *Terminal) Init(act host.Activity) error {
	m.count("Init")
	if m.InitFunc != nil {
		return m.InitFunc(act)
	}
	return nil
}

// OpenLoginActivity implements sdk.Terminal.
func (m *Terminal) OpenLoginActivity(act host.Activity, req sdk.LoginRequest, requestCode int) {
	m.launch(Launch{Method: "OpenLoginActivity", Activity: act, RequestCode: requestCode, Login: &req})
}

// Logout implements sdk.Terminal.
func (m *Terminal) Logout() error {
	m.count("Logout")
	if m.LogoutFunc != nil {
		if err := m.LogoutFunc(); err != nil {
			return err
		}
	}
	m.SetLoggedIn(false)
	return nil
}

// IsLoggedIn implements sdk.Terminal.
func (m *Terminal) IsLoggedIn() bool {
	m.count("IsLoggedIn")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// SetLoggedIn sets the session state reported by IsLoggedIn.
func (m *Terminal) SetLoggedIn(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedIn = v
}

// OpenCardReaderPage implements sdk.Terminal.
func (m *Terminal) OpenCardReaderPage(act host.Activity, requestCode int) {
	m.launch(Launch{Method: "OpenCardReaderPage", Activity: act, RequestCode: requestCode})
}

// PrepareForCheckout implements sdk.Terminal.
func (m *Terminal) PrepareForCheckout() error {
	m.count("PrepareForCheckout")
	if m.PrepareFunc != nil {
		return m.PrepareFunc()
	}
	return nil
}

// IsTipOnCardReaderAvailable implements sdk.Terminal.
func (m *Terminal) IsTipOnCardReaderAvailable() bool {
	m.count("IsTipOnCardReaderAvailable")
	return m.TipOnCardReaderEnabled
}

// Checkout implements sdk.Terminal.
func (m *Terminal) Checkout(act host.Activity, req sdk.PaymentRequest, requestCode int) {
	m.launch(Launch{Method: "Checkout", Activity: act, RequestCode: requestCode, Payment: &req})
}

// Launches returns the recorded launches in call order.
func (m *Terminal) Launches() []Launch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Launch, len(m.launches))
	copy(out, m.launches)
	return out
}

// LastLaunch returns the most recent launch, if any.
func (m *Terminal) LastLaunch() (Launch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.launches) == 0 {
		return Launch{}, false
	}
	return m.launches[len(m.launches)-1], true
}

// Calls returns how many times method was invoked.
func (m *Terminal) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}
