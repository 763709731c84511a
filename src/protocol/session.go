package protocol

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"orderbook/src/engine"
)

// MaxLineLength bounds one input line. Longer lines stop Run with
// bufio.ErrTooLong after the output so far has been flushed.
const MaxLineLength = 1 << 20

type Stats struct {
	Lines       int
	Commands    int
	Rejected    int
	ParseErrors int
	Trades      int
}

// Session drives a Registry from protocol commands and writes the resulting
// output lines. A Session is not safe for concurrent use.
type Session struct {
	books *engine.Registry
	out   *bufio.Writer
	log   zerolog.Logger
	stats Stats
}

func NewSession(books *engine.Registry, w io.Writer, log zerolog.Logger) *Session {
	return &Session{
		books: books,
		out:   bufio.NewWriter(w),
		log:   log,
	}
}

func (s *Session) Stats() Stats {
	return s.stats
}

// Run executes every command read from r. Malformed lines are logged and
// skipped; the first read or write error or context cancellation stops the
// run. Output of executed commands is flushed on every return path.
func (s *Session) Run(ctx context.Context, r io.Reader) (err error) {
	defer func() {
		if ferr := s.out.Flush(); err == nil {
			err = ferr
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineLength)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.stats.Lines++

		cmd, ok, err := Parse(scanner.Text())
		if err != nil {
			s.stats.ParseErrors++
			s.log.Warn().
				Err(err).
				Int("line", s.stats.Lines).
				Msg("Skipping malformed command")
			continue
		}
		if !ok {
			continue
		}
		if err := s.Execute(cmd); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Execute applies one command. Output is buffered until Flush or the end of Run.
func (s *Session) Execute(cmd Command) error {
	s.stats.Commands++
	switch cmd.Kind {
	case KindNew:
		return s.newOrder(cmd)
	case KindCancel:
		return s.cancel(cmd)
	case KindFlush:
		s.books.FlushAll()
		s.log.Debug().Msg("Order books flushed")
		return nil
	}
	return fmt.Errorf("unknown command kind %q", cmd.Kind)
}

func (s *Session) Flush() error {
	return s.out.Flush()
}

func (s *Session) newOrder(cmd Command) error {
	book := s.books.Book(cmd.Symbol)
	bid, ask := book.TopOfBook()

	var matches []engine.Match
	exec, err := book.Submit(engine.OrderRequest{
		Side:     cmd.Side,
		OwnerID:  cmd.UserID,
		OrderID:  cmd.OrderID,
		Price:    cmd.Price,
		Quantity: cmd.Quantity,
	}, func(m engine.Match) bool {
		matches = append(matches, m)
		return true
	})
	if err != nil {
		s.stats.Rejected++
		s.log.Warn().
			Err(err).
			Str("symbol", cmd.Symbol).
			Int64("user_id", cmd.UserID).
			Int64("order_id", cmd.OrderID).
			Msg("Order rejected")
		return nil
	}

	if _, err := fmt.Fprintf(s.out, "A, %d, %d\n", cmd.UserID, cmd.OrderID); err != nil {
		return err
	}
	if exec.Discarded > 0 {
		s.log.Info().
			Str("symbol", cmd.Symbol).
			Int64("user_id", cmd.UserID).
			Int64("order_id", cmd.OrderID).
			Int64("discarded", exec.Discarded).
			Msg("Market order remainder discarded")
	}

	for _, m := range matches {
		if err := s.writeTrade(m); err != nil {
			return err
		}
	}
	s.stats.Trades += len(matches)
	return s.writeTopChanges(book, bid, ask)
}

func (s *Session) cancel(cmd Command) error {
	for _, symbol := range s.books.Symbols() {
		book, ok := s.books.Lookup(symbol)
		if !ok {
			continue
		}
		bid, ask := book.TopOfBook()
		if !book.CancelOrder(cmd.UserID, cmd.OrderID) {
			continue
		}
		if _, err := fmt.Fprintf(s.out, "C, %d, %d\n", cmd.UserID, cmd.OrderID); err != nil {
			return err
		}
		return s.writeTopChanges(book, bid, ask)
	}

	s.stats.Rejected++
	s.log.Warn().
		Int64("user_id", cmd.UserID).
		Int64("order_id", cmd.OrderID).
		Msg("Cancel rejected: order not found")
	return nil
}

func (s *Session) writeTrade(m engine.Match) error {
	buyUser, buyOrder := m.TakerOwnerID, m.TakerOrderID
	sellUser, sellOrder := m.MakerOwnerID, m.MakerOrderID
	if m.Side == engine.Sell {
		buyUser, buyOrder, sellUser, sellOrder = sellUser, sellOrder, buyUser, buyOrder
	}
	_, err := fmt.Fprintf(s.out, "T, %d, %d, %d, %d, %d, %d\n",
		buyUser, buyOrder, sellUser, sellOrder, m.Price, m.Quantity)
	return err
}

func (s *Session) writeTopChanges(book *engine.Orderbook, prevBid, prevAsk engine.Quote) error {
	bid, ask := book.TopOfBook()
	if bid != prevBid {
		if err := writeTop(s.out, "B", bid); err != nil {
			return err
		}
	}
	if ask != prevAsk {
		if err := writeTop(s.out, "S", ask); err != nil {
			return err
		}
	}
	return nil
}

func writeTop(w io.Writer, side string, q engine.Quote) error {
	if q.Empty() {
		_, err := fmt.Fprintf(w, "B, %s, -, -\n", side)
		return err
	}
	_, err := fmt.Fprintf(w, "B, %s, %d, %d\n", side, q.Price, q.Quantity)
	return err
}
