package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atinyakov/GophFood/internal/app"
	"github.com/atinyakov/GophFood/internal/geo"
	"github.com/atinyakov/GophFood/internal/models"
	"github.com/atinyakov/GophFood/internal/service"
)

const helpText = `Available commands:
  cart                          show the cart
  add <id> <price> [name...]    add one unit of a food
  remove <id>                   remove one unit of a food
  clear                         empty the cart
  fetch                         reload cart and bookmarks from the service
  bookmarks                     list bookmarked restaurants
  bookmark <id> [name...]       bookmark a restaurant
  unbookmark <id>               drop a bookmark
  locate                        use the device location
  search <query...>             search addresses
  pick <n> | pick <lat> <lng>   choose a search result or a map point
  tag <Home|Work|Other>         label the address
  edit <text...>                replace the address text
  save                          save the address
  addresses                     list saved addresses
  checkout [address id]         place a cash on delivery order
  orders                        list placed orders
  register <user> <email> <pw>  create an account
  verify <email> <code>         confirm the account email
  resend <email>                send a new verification code
  help, exit`

// shell is the interactive loop over a session.
type shell struct {
	sess *app.Session
	in   io.Reader
	out  io.Writer

	// results of the last search, addressed by pick <n>.
	results []geo.Candidate
}

func newShell(sess *app.Session, in io.Reader, out io.Writer) *shell {
	return &shell{sess: sess, in: in, out: out}
}

// run reads commands until exit, EOF or ctx is done.
func (sh *shell) run(ctx context.Context) {
	scanner := bufio.NewScanner(sh.in)
	for {
		fmt.Fprint(sh.out, "gophfood> ")
		if ctx.Err() != nil || !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			fmt.Fprintln(sh.out, "Bye")
			return
		}
		if err := sh.exec(ctx, args[0], args[1:]); err != nil {
			fmt.Fprintln(sh.out, "Error:", err)
		}
	}
}

var errUsage = errors.New("wrong arguments, type 'help'")

func (sh *shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(sh.out, helpText)
	case "cart":
		sh.printCart(sh.sess.Cart.Snapshot())
	case "add":
		if len(args) < 2 {
			return errUsage
		}
		price, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid price %q", args[1])
		}
		if price.IsNegative() {
			return errors.New("price must not be negative")
		}
		line := models.CartLine{ID: args[0], Name: strings.Join(args[2:], " "), Price: price, Count: 1}
		sh.printCart(sh.sess.Cart.AddItem(ctx, line))
	case "remove":
		if len(args) != 1 {
			return errUsage
		}
		sh.printCart(sh.sess.Cart.RemoveItem(ctx, args[0]))
	case "clear":
		sh.printCart(sh.sess.Cart.Clear(ctx))
	case "fetch":
		if err := sh.sess.Refresh(ctx); err != nil {
			return err
		}
		sh.printCart(sh.sess.Cart.Snapshot())
		sh.printBookmarks(sh.sess.Bookmarks.Snapshot())
	case "bookmarks":
		sh.printBookmarks(sh.sess.Bookmarks.Snapshot())
	case "bookmark":
		if len(args) < 1 {
			return errUsage
		}
		sh.printBookmarks(sh.sess.Bookmarks.Add(ctx, models.BookmarkEntry{ID: args[0], Name: strings.Join(args[1:], " ")}))
	case "unbookmark":
		if len(args) != 1 {
			return errUsage
		}
		sh.printBookmarks(sh.sess.Bookmarks.Remove(ctx, args[0]))
	case "register", "verify", "resend":
		return sh.execAccount(ctx, cmd, args)
	default:
		return sh.execAddress(ctx, cmd, args)
	}
	return nil
}

func (sh *shell) execAccount(ctx context.Context, cmd string, args []string) error {
	var (
		msg string
		err error
	)
	switch cmd {
	case "register":
		if len(args) != 3 {
			return errUsage
		}
		msg, err = sh.sess.Auth.Register(ctx, models.Registration{Username: args[0], Email: args[1], Password: args[2]})
	case "verify":
		if len(args) != 2 {
			return errUsage
		}
		msg, err = sh.sess.Auth.VerifyOTP(ctx, args[0], args[1])
	case "resend":
		if len(args) != 1 {
			return errUsage
		}
		msg, err = sh.sess.Auth.ResendOTP(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if msg != "" {
		fmt.Fprintln(sh.out, msg)
	}
	return nil
}

func (sh *shell) execAddress(ctx context.Context, cmd string, args []string) error {
	flow := sh.sess.Address
	switch cmd {
	case "locate":
		st, err := flow.Locate(ctx)
		sh.printAddress(st)
		return err
	case "search":
		results, err := flow.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		sh.results = results
		if len(results) == 0 {
			fmt.Fprintln(sh.out, "No results")
		}
		for i, c := range results {
			fmt.Fprintf(sh.out, "  [%d] %s (%s)\n", i, c.Title, c.Subtitle)
		}
	case "pick":
		st, err := sh.pick(ctx, args)
		if err != nil {
			return err
		}
		sh.printAddress(st)
	case "tag":
		if len(args) != 1 {
			return errUsage
		}
		st, err := flow.SetTag(args[0])
		if err != nil {
			return err
		}
		sh.printAddress(st)
	case "edit":
		if len(args) == 0 {
			return errUsage
		}
		if _, err := flow.BeginEdit(); err != nil {
			return err
		}
		if _, err := flow.UpdateDraft(strings.Join(args, " ")); err != nil {
			return err
		}
		st, err := flow.CommitEdit()
		if err != nil {
			flow.CancelEdit()
			return err
		}
		sh.printAddress(st)
	case "save":
		saved, err := flow.Save(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%s\n  %s: %s\n", flow.Snapshot().Message, saved.Title, saved.Address)
	default:
		return sh.execCheckout(ctx, cmd, args)
	}
	return nil
}

func (sh *shell) pick(ctx context.Context, args []string) (service.AddressState, error) {
	switch len(args) {
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n >= len(sh.results) {
			return service.AddressState{}, fmt.Errorf("no search result %q", args[0])
		}
		return sh.sess.Address.Select(ctx, sh.results[n])
	case 2:
		lat, errLat := strconv.ParseFloat(args[0], 64)
		lng, errLng := strconv.ParseFloat(args[1], 64)
		if errLat != nil || errLng != nil {
			return service.AddressState{}, errUsage
		}
		return sh.sess.Address.Pick(ctx, models.Coordinates{Lat: lat, Lng: lng})
	default:
		return service.AddressState{}, errUsage
	}
}

func (sh *shell) execCheckout(ctx context.Context, cmd string, args []string) error {
	checkout := sh.sess.CheckoutFlow()
	switch cmd {
	case "addresses":
		list, err := checkout.Addresses(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(sh.out, "No saved addresses")
		}
		for _, a := range list {
			def := ""
			if a.IsDefault {
				def = " (default)"
			}
			fmt.Fprintf(sh.out, "  %s  %s: %s%s\n", deref(a.ID), a.Title, a.Address, def)
		}
	case "checkout":
		address := checkout.DefaultAddress(ctx)
		if len(args) == 1 {
			list, err := checkout.Addresses(ctx)
			if err != nil {
				return err
			}
			address = service.NoAddress()
			for _, a := range list {
				if deref(a.ID) == args[0] {
					address = a
				}
			}
		}
		order, err := checkout.PlaceOrder(ctx, address)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "Order %s placed: %s to %s\n",
			order.ID, order.TotalAmount.StringFixed(2), order.DeliveryAddress.Address)
	case "orders":
		orders, err := checkout.Orders(ctx)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			fmt.Fprintln(sh.out, "No orders")
		}
		for _, o := range orders {
			fmt.Fprintf(sh.out, "  %s  %s  %d items  %s\n", o.ID, o.Status, len(o.Items), o.TotalAmount.StringFixed(2))
		}
	default:
		return fmt.Errorf("unknown command %q, type 'help'", cmd)
	}
	return nil
}

func (sh *shell) printCart(c models.CartState) {
	if len(c.Items) == 0 {
		fmt.Fprintln(sh.out, "Cart is empty")
	}
	for _, l := range c.Items {
		fmt.Fprintf(sh.out, "  %-12s %-20s %3d x %s\n", l.ID, l.Name, l.Count, l.Price.StringFixed(2))
	}
	fmt.Fprintf(sh.out, "Total: %d items, %s%s\n", c.TotalItems, c.TotalAmount.StringFixed(2), status(c.Status))
}

func (sh *shell) printBookmarks(b models.BookmarkState) {
	if len(b.Bookmarks) == 0 {
		fmt.Fprintln(sh.out, "No bookmarks")
	}
	for _, e := range b.Bookmarks {
		fmt.Fprintf(sh.out, "  %-12s %s\n", e.ID, e.Name)
	}
	if s := status(b.Status); s != "" {
		fmt.Fprintln(sh.out, strings.TrimSpace(s))
	}
}

func (sh *shell) printAddress(st service.AddressState) {
	fmt.Fprintf(sh.out, "[%s] %s: %s (%s)\n", st.Phase, st.Tag, st.Address, geo.FormatCoordinates(st.Marker))
	if st.Message != "" {
		fmt.Fprintln(sh.out, " ", st.Message)
	}
}

func status(s models.Status) string {
	switch {
	case s.Loading:
		return " (syncing)"
	case s.Error != "":
		return " (sync failed: " + s.Error + ")"
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
