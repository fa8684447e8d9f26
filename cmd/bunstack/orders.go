package main

import (
	"fmt"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"bunstack/internal/api"
	"bunstack/internal/feed"
	"bunstack/internal/order"
	"bunstack/internal/robustness"
)

func newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit",
		Short: "Submit the composed item as an order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if err := a.requireAuth(); err != nil {
				return err
			}

			ids, err := a.builder.SubmissionIDs()
			if err != nil {
				return err
			}

			submitted, err := a.api.SubmitOrder(cmd.Context(), ids)
			if err != nil {
				// The builder is left intact so the order can be corrected
				// and resubmitted.
				if api.IsServerError(err) {
					return fmt.Errorf("%w (the service failed, your item is kept; retry submit)", err)
				}
				return err
			}

			a.builder.Clear(true)
			fmt.Printf("Order %s placed: %s\n",
				headerStyle.Render(fmt.Sprintf("#%d", submitted.Number)), submitted.Name)
			return nil
		},
	}
}

func newOrdersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders <number>",
		Short: "Look up an order by its public number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			number, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid order number %q", args[0])
			}
			o, err := a.api.OrderByNumber(cmd.Context(), number)
			if err != nil {
				return err
			}
			printOrder(o)
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [all|mine]",
		Short: "Follow a live order feed, falling back to polling when needed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream := "all"
			if len(args) == 1 {
				stream = args[0]
			}
			if stream != "all" && stream != "mine" {
				return fmt.Errorf("unknown stream %q, expected all or mine", stream)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			if stream == "mine" {
				if err := a.requireAuth(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := feed.NewRegistry(a.sess)
			breaker := robustness.NewCircuitBreaker(a.cfg.Breaker.Threshold, a.cfg.Breaker.ResetTimeout)

			switch stream {
			case "all":
				registry.Register(feed.ManagerConfig{
					Name:           "all",
					URL:            func() string { return a.cfg.Streams.FeedURL },
					Fallback:       feed.NewLoader(a.cfg.API.BaseURL+"/orders/all", nil),
					ProbeTimeout:   a.cfg.Streams.ProbeTimeout,
					ConnectTimeout: a.cfg.Streams.ConnectTimeout,
					PollInterval:   a.cfg.Streams.PollInterval,
					Breaker:        breaker,
				})
			case "mine":
				registry.Register(feed.ManagerConfig{
					Name: "mine",
					URL: func() string {
						// The freshest access token rides along as a query
						// parameter on every connect attempt.
						return a.cfg.Streams.HistoryURL + "?token=" + url.QueryEscape(a.sess.AccessToken())
					},
					Fallback:       feed.NewLoader(a.cfg.API.BaseURL+"/orders", a.sess.Do),
					AuthRequired:   true,
					ProbeTimeout:   a.cfg.Streams.ProbeTimeout,
					ConnectTimeout: a.cfg.Streams.ConnectTimeout,
					PollInterval:   a.cfg.Streams.PollInterval,
					Breaker:        breaker,
				})
			}

			go registry.Run(ctx)
			registry.ConnectAll(ctx)

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-registry.Events():
					printEvent(ev)
				}
			}
		},
	}
}

func printEvent(ev feed.Event) {
	switch ev.Kind {
	case feed.StatusChanged:
		fmt.Printf("%s %s\n", dimStyle.Render("["+ev.Stream+"]"), ev.Status)
	case feed.StreamError:
		fmt.Printf("%s %s\n", dimStyle.Render("["+ev.Stream+"]"), errorStyle.Render(ev.Err.Error()))
	case feed.OrdersReplaced:
		fmt.Printf("%s %d orders (total %d, today %d)\n",
			dimStyle.Render("["+ev.Stream+"]"), len(ev.Batch.Orders), ev.Batch.Total, ev.Batch.TotalToday)
		for _, o := range ev.Batch.Orders {
			printOrder(o)
		}
	}
}

func printOrder(o order.Order) {
	fmt.Printf("  #%-6d %-34s %s  %s\n",
		o.Number, o.Name, statusStyle(o.Status).Render(string(o.Status)),
		dimStyle.Render(o.CreatedAt.Format("2006-01-02 15:04")))
}
