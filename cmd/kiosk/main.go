// Package main запускает терминальный клиент киоска Greenfill Hub.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/mmeshcher/greenfill-hub/internal/catalog"
	"github.com/mmeshcher/greenfill-hub/internal/client"
	"github.com/mmeshcher/greenfill-hub/internal/config"
	"github.com/mmeshcher/greenfill-hub/internal/kiosk"
	"github.com/mmeshcher/greenfill-hub/internal/model"
	"github.com/mmeshcher/greenfill-hub/internal/pricing"
)

const help = `commands:
  register                              open the registration form
  signup <email> <phone> <pass> <pass>  submit the registration form
  back                                  leave registration or profile
  login <email|phone> <password>        sign in
  logout                                sign out
  location <KK1..KK13>                  choose a dispenser
  brand <id>                            choose a brand
  volume <ml>                           enter the volume
  pay                                   proceed to payment
  method <online-transfer|e-wallet>     choose a payment method
  confirm                               pay and dispense
  done                                  return to the dashboard
  cancel                                discard the order
  profile                               show points and vouchers
  redeem <voucher id>                   redeem a voucher
  quit                                  exit`

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.ParseKiosk()
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(cfg.ServerURL, cfg.AnonKey)

	progress := &progressPrinter{out: os.Stdout}
	k := kiosk.New(c, c, kiosk.Options{
		PaymentDelay:     cfg.PaymentDelay,
		DispenseDuration: cfg.DispenseDuration,
		DispenseTick:     cfg.DispenseTick,
		Logger:           logger,
		OnChange:         progress.onChange,
	})

	d := &driver{k: k, out: os.Stdout}
	d.run(ctx, os.Stdin)
}

// progressPrinter печатает прогресс налива шагами по 10%. onChange вызывается
// и из горутины налива, и из основной горутины.
type progressPrinter struct {
	mu         sync.Mutex
	out        io.Writer
	lastDecile int
}

func (p *progressPrinter) onChange(s kiosk.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Screen != kiosk.Dispensing && s.Screen != kiosk.Complete {
		p.lastDecile = 0
		return
	}
	if d := int(s.Progress) / 10; d > p.lastDecile {
		p.lastDecile = d
		fmt.Fprintf(p.out, "dispensing... %3.0f%%\n", s.Progress)
	}
}

type driver struct {
	k   *kiosk.Kiosk
	out io.Writer
}

func (d *driver) run(ctx context.Context, in io.Reader) {
	if d.k.RestoreSession() {
		fmt.Fprintln(d.out, "session restored")
	}
	fmt.Fprintln(d.out, help)
	d.render()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(d.out, "> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !d.exec(ctx, strings.Fields(line)) {
				return
			}
			d.render()
		}
	}
}

func (d *driver) exec(ctx context.Context, args []string) bool {
	if len(args) == 0 {
		return true
	}

	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch args[0] {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintln(d.out, help)
	case "register":
		d.k.StartRegistration()
	case "signup":
		_ = d.k.Register(ctx, arg(1), arg(2), arg(3), arg(4))
	case "back":
		d.k.BackToLogin()
		d.k.Back()
	case "login":
		_ = d.k.SignIn(ctx, arg(1), arg(2))
	case "logout":
		d.k.SignOut(ctx)
	case "location":
		d.k.SelectLocation(model.Location(strings.ToUpper(arg(1))))
	case "brand":
		d.k.SelectBrand(strings.ToLower(arg(1)))
	case "volume":
		d.k.EnterVolume(arg(1))
	case "pay":
		d.k.ProceedToPayment()
	case "method":
		d.k.ChoosePaymentMethod(model.PaymentMethod(arg(1)))
	case "confirm":
		if method, ok := d.k.ConfirmPayment(); ok {
			fmt.Fprintf(d.out, "payment received via %s\n", method)
			d.k.WaitDispensed()
		}
	case "done":
		if points, ok := d.k.ReturnToDashboard(ctx); ok {
			fmt.Fprintf(d.out, "you earned %d points\n", points)
		}
	case "cancel":
		d.k.Cancel()
	case "profile":
		view, err := d.k.ShowProfile(ctx)
		if err == nil && view != nil {
			d.printProfile(view)
		}
	case "redeem":
		if remaining, err := d.k.RedeemVoucher(ctx, arg(1)); err == nil {
			fmt.Fprintf(d.out, "remaining points: %d\n", remaining)
		}
	default:
		fmt.Fprintf(d.out, "unknown command %q, type help\n", args[0])
	}
	return true
}

func (d *driver) render() {
	s := d.k.State()

	if s.Notice != "" {
		fmt.Fprintf(d.out, "! %s\n", s.Notice)
	}

	switch s.Screen {
	case kiosk.LoggedOut:
		fmt.Fprintln(d.out, "[sign in] login <email|phone> <password>, or register")
	case kiosk.Registering:
		fmt.Fprintln(d.out, "[register] signup <email> <phone> <password> <confirm>")
	case kiosk.SelectingLocation:
		fmt.Fprintf(d.out, "[%s] choose a dispenser: %s\n", s.Session.Email, joinLocations())
	case kiosk.SelectingBrand:
		fmt.Fprintf(d.out, "[%s] choose a brand:\n", s.Location)
		for _, b := range catalog.Brands() {
			fmt.Fprintf(d.out, "  %-12s %-12s %s / 10ml\n", b.ID, b.Name, pricing.Format(b.PricePerTenMl))
		}
	case kiosk.EnteringVolume:
		total := "-"
		if price, ok := s.Quote(); ok {
			total = pricing.Format(price)
		}
		fmt.Fprintf(d.out, "[%s %s] volume: %q ml, total %s\n", s.Location, s.Brand.Name, s.VolumeInput, total)
	case kiosk.AwaitingPayment, kiosk.ChoosingPaymentMethod:
		o := s.Order
		fmt.Fprintf(d.out, "[payment] %s %.0fml at %s: %s, method %q\n",
			o.Brand.Name, o.Volume, o.Location, pricing.Format(o.TotalPrice), s.Method)
	case kiosk.Complete:
		fmt.Fprintln(d.out, "[complete] take your refill, then type done")
	case kiosk.Profile:
		fmt.Fprintln(d.out, "[profile] redeem <voucher id>, or back")
	}
}

func (d *driver) printProfile(v *kiosk.ProfileView) {
	fmt.Fprintf(d.out, "%s %s\n", v.Profile.Email, v.Profile.Phone)
	fmt.Fprintf(d.out, "points: %d earned, %d redeemed, %d available\n",
		v.History.TotalPoints, v.History.RedeemedPoints, v.History.AvailablePoints)

	for _, r := range v.History.Records {
		fmt.Fprintf(d.out, "  %s  %-10s %6.0fml  %-9s %s  +%d\n",
			r.CreatedAt.Format("2006-01-02 15:04"), r.Brand, r.Volume, pricing.Format(r.TotalPrice), r.Location, r.RewardPoints)
	}

	fmt.Fprintln(d.out, "vouchers:")
	for _, o := range v.Vouchers {
		status := "available"
		if !o.Eligible {
			status = fmt.Sprintf("need %d more", o.Shortfall)
		}
		fmt.Fprintf(d.out, "  %s  %-24s %4d pts  %s\n", o.Voucher.ID, o.Voucher.Name, o.Voucher.PointsRequired, status)
	}
}

func joinLocations() string {
	locs := catalog.Locations()
	parts := make([]string, len(locs))
	for i, l := range locs {
		parts[i] = string(l)
	}
	return strings.Join(parts, " ")
}
