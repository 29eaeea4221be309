// Package kiosk реализует сценарий заказа на киоске: экраны, переходы между ними
// и таймеры оплаты и налива.
package kiosk

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/greenfill-hub/internal/catalog"
	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/pricing"
	"github.com/mmeshcher/greenfill-hub/internal/validation"
)

// Screen описывает текущий экран киоска.
type Screen int

const (
	LoggedOut Screen = iota
	Registering
	Authenticating
	SelectingLocation
	SelectingBrand
	EnteringVolume
	AwaitingPayment
	ChoosingPaymentMethod
	Dispensing
	Complete
	Profile
)

var screenNames = [...]string{
	LoggedOut:             "LoggedOut",
	Registering:           "Registering",
	Authenticating:        "Authenticating",
	SelectingLocation:     "SelectingLocation",
	SelectingBrand:        "SelectingBrand",
	EnteringVolume:        "EnteringVolume",
	AwaitingPayment:       "AwaitingPayment",
	ChoosingPaymentMethod: "ChoosingPaymentMethod",
	Dispensing:            "Dispensing",
	Complete:              "Complete",
	Profile:               "Profile",
}

func (s Screen) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return "Unknown"
	}
	return screenNames[s]
}

// dashboard сообщает, относится ли экран к выбору параметров заказа.
func (s Screen) dashboard() bool {
	return s == SelectingLocation || s == SelectingBrand || s == EnteringVolume
}

// State содержит всё состояние киоска. Переходы ниже не изменяют аргумент, а возвращают новое значение.
// Недопустимый переход возвращает состояние без изменений.
type State struct {
	Screen      Screen
	Session     *model.Session
	Location    model.Location
	Brand       *model.Brand
	VolumeInput string
	Order       *model.Order
	Method      model.PaymentMethod
	Processing  bool
	Progress    float64
	Notice      string
}

// NewState возвращает начальное состояние: пользователь не вошёл.
func NewState() State {
	return State{Screen: LoggedOut}
}

// Quote возвращает стоимость для текущего бренда и введённого объёма.
func (s State) Quote() (decimal.Decimal, bool) {
	if s.Brand == nil {
		return decimal.Zero, false
	}
	volume, ok := validation.ParseVolume(s.VolumeInput)
	if !ok {
		return decimal.Zero, false
	}
	price, err := pricing.Price(*s.Brand, volume)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

// dashboardState возвращает пустой экран выбора для вошедшего пользователя.
func dashboardState(s State) State {
	return State{Screen: SelectingLocation, Session: s.Session}
}

// StartRegistration открывает форму регистрации.
func StartRegistration(s State) State {
	if s.Screen != LoggedOut {
		return s
	}
	s.Screen = Registering
	s.Notice = ""
	return s
}

// BackToLogin возвращает из формы регистрации к форме входа.
func BackToLogin(s State) State {
	if s.Screen != Registering {
		return s
	}
	s.Screen = LoggedOut
	s.Notice = ""
	return s
}

// BeginSignIn отмечает, что запрос входа отправлен.
func BeginSignIn(s State) State {
	if s.Screen != LoggedOut {
		return s
	}
	s.Screen = Authenticating
	s.Notice = ""
	return s
}

// SignedIn открывает экран выбора для новой сессии.
func SignedIn(s State, session model.Session) State {
	if s.Screen != Authenticating && s.Screen != LoggedOut {
		return s
	}
	s.Session = &session
	return dashboardState(s)
}

// SignInFailed возвращает к форме входа с сообщением для пользователя.
func SignInFailed(s State, notice string) State {
	if s.Screen != Authenticating {
		return s
	}
	return State{Screen: LoggedOut, Notice: notice}
}

// Registered возвращает к форме входа после успешной регистрации.
func Registered(s State, notice string) State {
	if s.Screen != Registering {
		return s
	}
	return State{Screen: LoggedOut, Notice: notice}
}

// WithNotice задаёт сообщение для пользователя, не меняя экран.
func WithNotice(s State, notice string) State {
	s.Notice = notice
	return s
}

// SignedOut сбрасывает сессию и заказ. Во время оплаты и налива выход недоступен.
func SignedOut(s State) State {
	if s.Screen == LoggedOut || s.Screen == Authenticating || s.Screen == Dispensing || s.Processing {
		return s
	}
	return NewState()
}

// SelectLocation выбирает автомат. Неизвестный код игнорируется.
func SelectLocation(s State, loc model.Location) State {
	if !s.Screen.dashboard() || !catalog.IsLocation(loc) {
		return s
	}
	s.Location = loc
	s.Notice = ""
	if s.Screen == SelectingLocation {
		s.Screen = SelectingBrand
	}
	return s
}

// SelectBrand выбирает бренд. Без выбранного автомата переход не выполняется.
func SelectBrand(s State, brandID string) State {
	if s.Screen != SelectingBrand && s.Screen != EnteringVolume {
		return s
	}
	if s.Location == "" {
		return s
	}
	b, ok := catalog.BrandByID(brandID)
	if !ok {
		return s
	}
	s.Brand = &b
	if s.Screen == SelectingBrand {
		s.Screen = EnteringVolume
	}
	return s
}

// EnterVolume заменяет введённый объём. Ввод, не являющийся десятичным числом, отклоняется.
func EnterVolume(s State, input string) State {
	if s.Screen != EnteringVolume || !validation.IsVolumeInput(input) {
		return s
	}
	s.VolumeInput = input
	return s
}

// ProceedToPayment создаёт заказ и открывает экран оплаты.
func ProceedToPayment(s State) State {
	if s.Screen != EnteringVolume || s.Brand == nil || s.Location == "" {
		return s
	}
	volume, ok := validation.ParseVolume(s.VolumeInput)
	if !ok {
		return s
	}
	order, err := catalog.NewOrder(s.Brand.ID, volume, s.Location)
	if err != nil {
		return s
	}

	s.Order = order
	s.Method = ""
	s.Processing = false
	s.Screen = AwaitingPayment
	return s
}

// ChoosePaymentMethod выбирает способ оплаты, заменяя предыдущий выбор.
func ChoosePaymentMethod(s State, m model.PaymentMethod) State {
	if s.Screen != AwaitingPayment && s.Screen != ChoosingPaymentMethod {
		return s
	}
	if s.Processing || !m.Valid() {
		return s
	}
	s.Method = m
	s.Screen = ChoosingPaymentMethod
	return s
}

// BeginPayment блокирует кнопку оплаты на время обработки.
// Второй вызов до завершения оплаты возвращает false.
func BeginPayment(s State) (State, bool) {
	if s.Screen != ChoosingPaymentMethod || s.Processing || !s.Method.Valid() || s.Order == nil {
		return s, false
	}
	s.Processing = true
	return s, true
}

// CompletePayment закрепляет способ оплаты в заказе и запускает налив.
func CompletePayment(s State) State {
	if s.Screen != ChoosingPaymentMethod || !s.Processing || s.Order == nil {
		return s
	}
	order := *s.Order
	order.PaymentMethod = s.Method
	s.Order = &order
	s.Processing = false
	s.Progress = 0
	s.Screen = Dispensing
	return s
}

// AdvanceDispensing устанавливает прогресс налива. Прогресс не убывает и
// ограничен 100; по достижении 100 налив завершается.
func AdvanceDispensing(s State, progress float64) State {
	if s.Screen != Dispensing {
		return s
	}
	if progress > s.Progress {
		s.Progress = progress
	}
	if s.Progress >= 100 {
		s.Progress = 100
		s.Screen = Complete
	}
	return s
}

// ReturnToDashboard завершает цикл: возвращает заказ для записи в журнал и очищает его.
func ReturnToDashboard(s State) (State, *model.Order) {
	if s.Screen != Complete {
		return s, nil
	}
	return dashboardState(s), s.Order
}

// Cancel отменяет заказ до начала оплаты без записи в журнал.
func Cancel(s State) State {
	switch {
	case s.Screen.dashboard(), s.Screen == AwaitingPayment:
	case s.Screen == ChoosingPaymentMethod && !s.Processing:
	default:
		return s
	}
	return dashboardState(s)
}

// ShowProfile открывает профиль с экрана выбора.
func ShowProfile(s State) State {
	if !s.Screen.dashboard() {
		return s
	}
	next := dashboardState(s)
	next.Screen = Profile
	return next
}

// Back возвращает из профиля на экран выбора.
func Back(s State) State {
	if s.Screen != Profile {
		return s
	}
	return dashboardState(s)
}
