package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/greenfill-hub/internal/catalog"
	"github.com/mmeshcher/greenfill-hub/internal/client"
	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/rewards"
	"github.com/mmeshcher/greenfill-hub/internal/validation"
)

const (
	DefaultPaymentDelay     = 2 * time.Second
	DefaultDispenseDuration = 5 * time.Second
	DefaultDispenseTick     = 50 * time.Millisecond
)

const (
	noticeInvalidCredentials = "Invalid credentials!"
	noticeSignInFailed       = "Login failed. Please try again."
	noticeRegistered         = "Registration successful! Please sign in."
	noticeRegisterFailed     = "Registration failed. Please try again."
	noticeSessionExpired     = "Session expired. Please sign in again."
)

// Authenticator выполняет вход и регистрацию во внешнем сервисе.
type Authenticator interface {
	SignUp(ctx context.Context, email, phone, password string) (uuid.UUID, error)
	SignIn(ctx context.Context, identifier, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
	CurrentSession() (*model.Session, bool)
}

// Ledger предоставляет доступ к внешнему журналу наливов и баллов.
type Ledger interface {
	RecordRefill(ctx context.Context, token string, req client.RefillRequest) (int64, error)
	ListHistory(ctx context.Context, token string) (*client.History, error)
	Profile(ctx context.Context, token string) (*model.Profile, error)
	RedeemVoucher(ctx context.Context, token string, v model.Voucher) (int64, error)
}

// Options задаёт таймеры и окружение киоска. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	PaymentDelay     time.Duration
	DispenseDuration time.Duration
	DispenseTick     time.Duration
	Clock            clockwork.Clock
	Logger           *zap.Logger
	// OnChange вызывается после каждого изменения состояния, вне блокировки.
	OnChange func(State)
}

// VoucherOption описывает ваучер из каталога и его доступность для текущего баланса.
type VoucherOption struct {
	Voucher   model.Voucher
	Eligible  bool
	Shortfall int64
}

// ProfileView содержит данные экрана профиля.
type ProfileView struct {
	Profile  *model.Profile
	History  *client.History
	Vouchers []VoucherOption
}

// Kiosk владеет единственным состоянием киоска и последовательно применяет к нему события.
type Kiosk struct {
	mu    sync.Mutex
	state State

	auth   Authenticator
	ledger Ledger

	clock            clockwork.Clock
	logger           *zap.Logger
	onChange         func(State)
	paymentDelay     time.Duration
	dispenseDuration time.Duration
	dispenseTick     time.Duration

	dispensing sync.WaitGroup
}

// New создаёт киоск в состоянии LoggedOut.
func New(auth Authenticator, ledger Ledger, opts Options) *Kiosk {
	k := &Kiosk{
		state:            NewState(),
		auth:             auth,
		ledger:           ledger,
		clock:            opts.Clock,
		logger:           opts.Logger,
		onChange:         opts.OnChange,
		paymentDelay:     opts.PaymentDelay,
		dispenseDuration: opts.DispenseDuration,
		dispenseTick:     opts.DispenseTick,
	}
	if k.clock == nil {
		k.clock = clockwork.NewRealClock()
	}
	if k.logger == nil {
		k.logger = zap.NewNop()
	}
	if k.paymentDelay <= 0 {
		k.paymentDelay = DefaultPaymentDelay
	}
	if k.dispenseDuration <= 0 {
		k.dispenseDuration = DefaultDispenseDuration
	}
	if k.dispenseTick <= 0 {
		k.dispenseTick = DefaultDispenseTick
	}
	return k
}

// State возвращает копию текущего состояния.
func (k *Kiosk) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// apply применяет переход под блокировкой и уведомляет подписчика.
func (k *Kiosk) apply(transition func(State) State) State {
	k.mu.Lock()
	k.state = transition(k.state)
	s := k.state
	k.mu.Unlock()

	k.notify(s)
	return s
}

func (k *Kiosk) notify(s State) {
	if k.onChange != nil {
		k.onChange(s)
	}
}

// RestoreSession открывает экран выбора, если у поставщика входа уже есть действующая сессия.
func (k *Kiosk) RestoreSession() bool {
	session, ok := k.auth.CurrentSession()
	if !ok {
		return false
	}
	s := k.apply(func(s State) State { return SignedIn(s, *session) })
	return s.Session != nil
}

// StartRegistration открывает форму регистрации.
func (k *Kiosk) StartRegistration() State {
	return k.apply(StartRegistration)
}

// BackToLogin закрывает форму регистрации.
func (k *Kiosk) BackToLogin() State {
	return k.apply(BackToLogin)
}

// Register проверяет форму и регистрирует пользователя.
func (k *Kiosk) Register(ctx context.Context, email, phone, password, confirm string) error {
	if k.State().Screen != Registering {
		return nil
	}

	if err := validation.ValidateRegistration(email, phone, password, confirm); err != nil {
		k.apply(func(s State) State { return WithNotice(s, err.Error()) })
		return err
	}

	if _, err := k.auth.SignUp(ctx, email, phone, password); err != nil {
		k.logger.Info("registration failed", zap.String("email", email), zap.Error(err))

		notice := noticeRegisterFailed
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Message != "" {
			notice = apiErr.Message
		}
		k.apply(func(s State) State { return WithNotice(s, notice) })
		return err
	}

	k.apply(func(s State) State { return Registered(s, noticeRegistered) })
	return nil
}

// SignIn проверяет форму и выполняет вход по email или телефону.
func (k *Kiosk) SignIn(ctx context.Context, identifier, password string) error {
	if k.State().Screen != LoggedOut {
		return nil
	}

	if err := validation.ValidateLogin(identifier, password); err != nil {
		k.apply(func(s State) State { return WithNotice(s, err.Error()) })
		return err
	}

	k.apply(BeginSignIn)

	session, err := k.auth.SignIn(ctx, identifier, password)
	if err != nil {
		notice := noticeSignInFailed
		if errors.Is(err, client.ErrInvalidCredentials) {
			notice = noticeInvalidCredentials
		} else {
			k.logger.Error("sign in error", zap.Error(err))
		}
		k.apply(func(s State) State { return SignInFailed(s, notice) })
		return err
	}

	k.apply(func(s State) State { return SignedIn(s, *session) })
	return nil
}

// SignOut завершает сессию. Ошибка отзыва токена только логируется.
func (k *Kiosk) SignOut(ctx context.Context) State {
	k.mu.Lock()
	before := k.state
	k.state = SignedOut(k.state)
	s := k.state
	k.mu.Unlock()

	if before.Session == nil || s.Session != nil {
		return s
	}

	k.notify(s)
	if err := k.auth.SignOut(ctx); err != nil {
		k.logger.Warn("sign out error", zap.Error(err))
	}
	return s
}

// SelectLocation выбирает автомат.
func (k *Kiosk) SelectLocation(loc model.Location) State {
	return k.apply(func(s State) State { return SelectLocation(s, loc) })
}

// SelectBrand выбирает бренд.
func (k *Kiosk) SelectBrand(brandID string) State {
	return k.apply(func(s State) State { return SelectBrand(s, brandID) })
}

// EnterVolume заменяет введённый объём.
func (k *Kiosk) EnterVolume(input string) State {
	return k.apply(func(s State) State { return EnterVolume(s, input) })
}

// ProceedToPayment переходит к оплате.
func (k *Kiosk) ProceedToPayment() State {
	return k.apply(ProceedToPayment)
}

// ChoosePaymentMethod выбирает способ оплаты.
func (k *Kiosk) ChoosePaymentMethod(m model.PaymentMethod) State {
	return k.apply(func(s State) State { return ChoosePaymentMethod(s, m) })
}

// Cancel отменяет заказ до начала оплаты.
func (k *Kiosk) Cancel() State {
	return k.apply(Cancel)
}

// ConfirmPayment имитирует оплату: ждёт фиксированную задержку, закрепляет способ оплаты
// в заказе и запускает налив. Возвращает способ оплаты и true, если оплата прошла.
// Параллельный повторный вызов ничего не делает и возвращает false. Ожидание не прерывается.
func (k *Kiosk) ConfirmPayment() (model.PaymentMethod, bool) {
	k.mu.Lock()
	next, ok := BeginPayment(k.state)
	if !ok {
		k.mu.Unlock()
		return "", false
	}
	k.state = next
	k.mu.Unlock()
	k.notify(next)

	<-k.clock.After(k.paymentDelay)

	k.mu.Lock()
	k.state = CompletePayment(k.state)
	s := k.state
	if s.Screen == Dispensing {
		k.startDispensing()
	}
	k.mu.Unlock()
	k.notify(s)

	if s.Screen != Dispensing {
		return "", false
	}
	return s.Order.PaymentMethod, true
}

// startDispensing запускает таймер налива. Вызывается под k.mu.
func (k *Kiosk) startDispensing() {
	ticker := k.clock.NewTicker(k.dispenseTick)
	start := k.clock.Now()

	k.dispensing.Add(1)
	go func() {
		defer k.dispensing.Done()
		defer ticker.Stop()

		for range ticker.Chan() {
			progress := float64(k.clock.Since(start)) / float64(k.dispenseDuration) * 100
			s := k.apply(func(s State) State { return AdvanceDispensing(s, progress) })
			if s.Screen != Dispensing {
				k.logger.Info("dispensing complete", zap.Stringer("screen", s.Screen))
				return
			}
		}
	}()
}

// WaitDispensed ждёт окончания текущего налива.
func (k *Kiosk) WaitDispensed() {
	k.dispensing.Wait()
}

// ReturnToDashboard записывает завершённый заказ в журнал и возвращает на экран выбора.
// Ошибка записи только логируется; пользователь в любом случае возвращается на экран выбора.
// Возвращает начисленные баллы и признак успешной записи.
func (k *Kiosk) ReturnToDashboard(ctx context.Context) (int64, bool) {
	k.mu.Lock()
	next, order := ReturnToDashboard(k.state)
	k.state = next
	k.mu.Unlock()

	if order == nil {
		return 0, false
	}
	k.notify(next)

	if next.Session == nil {
		k.logger.Warn("refill not recorded: no session", zap.Stringer("orderID", order.ID))
		return 0, false
	}

	points, err := k.ledger.RecordRefill(ctx, next.Session.AccessToken, client.RefillRequest{
		RequestID:     order.ID,
		Brand:         order.Brand.Name,
		Volume:        order.Volume,
		TotalPrice:    order.TotalPrice,
		Location:      order.Location,
		PaymentMethod: order.PaymentMethod,
	})
	if err != nil {
		k.logger.Error("error recording refill", zap.Stringer("orderID", order.ID), zap.Error(err))
		return 0, false
	}

	k.logger.Info("refill recorded", zap.Stringer("orderID", order.ID), zap.Int64("pointsEarned", points))
	return points, true
}

// ShowProfile загружает профиль, историю наливов и каталог ваучеров и открывает экран профиля.
func (k *Kiosk) ShowProfile(ctx context.Context) (*ProfileView, error) {
	s := k.State()
	if !s.Screen.dashboard() || s.Session == nil {
		return nil, nil
	}
	token := s.Session.AccessToken

	var (
		profile *model.Profile
		history *client.History
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = k.ledger.Profile(gctx, token)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = k.ledger.ListHistory(gctx, token)
		return err
	})
	if err := g.Wait(); err != nil {
		k.handleLedgerError(err)
		return nil, err
	}

	k.apply(ShowProfile)

	return &ProfileView{
		Profile:  profile,
		History:  history,
		Vouchers: voucherOptions(history.AvailablePoints),
	}, nil
}

// Back возвращает из профиля на экран выбора.
func (k *Kiosk) Back() State {
	return k.apply(Back)
}

// RedeemVoucher обменивает баллы на ваучер с экрана профиля и возвращает остаток баллов.
func (k *Kiosk) RedeemVoucher(ctx context.Context, voucherID string) (int64, error) {
	s := k.State()
	if s.Screen != Profile || s.Session == nil {
		return 0, nil
	}

	v, ok := catalog.VoucherByID(voucherID)
	if !ok {
		return 0, catalog.ErrUnknownVoucher
	}

	remaining, err := k.ledger.RedeemVoucher(ctx, s.Session.AccessToken, v)
	if err != nil {
		var insufficient *rewards.InsufficientPointsError
		if errors.As(err, &insufficient) {
			k.apply(func(s State) State { return WithNotice(s, insufficientNotice(insufficient)) })
			return 0, err
		}
		k.handleLedgerError(err)
		return 0, err
	}

	k.apply(func(s State) State { return WithNotice(s, "Successfully redeemed: "+v.Name) })
	return remaining, nil
}

// handleLedgerError выходит из сессии, если сервис отверг токен.
func (k *Kiosk) handleLedgerError(err error) {
	if !errors.Is(err, client.ErrUnauthorized) {
		k.logger.Error("ledger error", zap.Error(err))
		return
	}

	k.logger.Info("session rejected by server", zap.Error(err))
	k.apply(func(s State) State {
		if s.Processing || s.Screen == Dispensing {
			return s
		}
		return WithNotice(NewState(), noticeSessionExpired)
	})
	if err := k.auth.SignOut(context.Background()); err != nil {
		k.logger.Warn("sign out error", zap.Error(err))
	}
}

func voucherOptions(balance int64) []VoucherOption {
	vouchers := catalog.Vouchers()
	res := make([]VoucherOption, 0, len(vouchers))
	for _, v := range vouchers {
		opt := VoucherOption{Voucher: v, Eligible: rewards.CanRedeem(balance, v)}
		if !opt.Eligible {
			opt.Shortfall = v.PointsRequired - balance
		}
		res = append(res, opt)
	}
	return res
}

func insufficientNotice(e *rewards.InsufficientPointsError) string {
	return fmt.Sprintf("Insufficient points! You need %d more points to redeem this voucher.", e.Shortfall)
}
