// Command tracker runs the tracking pipeline against a stream of raw
// interaction signals, one JSON object per line, read from a file or
// stdin. It exists for local verification and replay of captured
// sessions: signals flow through the same normalizers, adapters, and
// durable queue as production traffic.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/igorcardos0/aquiplanos-tracking/internal/adapters"
	"github.com/igorcardos0/aquiplanos-tracking/internal/autotrack"
	"github.com/igorcardos0/aquiplanos-tracking/internal/bus"
	"github.com/igorcardos0/aquiplanos-tracking/internal/config"
	"github.com/igorcardos0/aquiplanos-tracking/internal/dom"
	"github.com/igorcardos0/aquiplanos-tracking/internal/event"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/clock"
	"github.com/igorcardos0/aquiplanos-tracking/internal/pkg/logger"
	"github.com/igorcardos0/aquiplanos-tracking/internal/queue"
	"github.com/igorcardos0/aquiplanos-tracking/internal/tracker"
)

// signal is one line of the replay stream. Kind selects which of the
// optional payloads applies.
type signal struct {
	Kind string `json:"signal"`

	// pageview
	Page   *event.PageInfo `json:"page,omitempty"`
	Client *event.Client   `json:"client,omitempty"`

	// click
	Target *dom.Element `json:"target,omitempty"`

	// focus / submit
	Form *dom.Form `json:"form,omitempty"`

	// scroll
	Top      float64 `json:"top,omitempty"`
	Viewport float64 `json:"viewport,omitempty"`
	Height   float64 `json:"height,omitempty"`

	// visibility
	Hidden bool `json:"hidden,omitempty"`

	// custom
	Name       string                 `json:"name,omitempty"`
	Type       string                 `json:"type,omitempty"`
	Category   string                 `json:"category,omitempty"`
	Label      string                 `json:"label,omitempty"`
	Value      float64                `json:"value,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`

	// wait
	MS int `json:"ms,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	signalsPath := flag.String("signals", "-", "JSONL signal stream, - for stdin")
	drain := flag.Duration("drain", 2*time.Second, "time to wait for deliveries after the stream ends")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("load config: %v", err)
		}
		cfg = config.Default()
	}
	if cfg.Debug {
		logger.SetLevel(logger.DEBUG)
	}
	cfg.Validate()

	ctx := context.Background()

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	q := queue.New(ctx, rdb, queue.Options{
		KeyPrefix: cfg.Queue.KeyPrefix,
		MaxAge:    cfg.Queue.MaxAge(),
	})

	ambient := event.NewContext()
	session := event.NewSession(event.NewRedisSessionStore(rdb, cfg.Queue.KeyPrefix, 0))
	norm := event.NewNormalizer(ambient, session)
	b := bus.New()
	clk := clock.Real{}
	auto := autotrack.New(cfg, norm, b, clk)
	client := tracker.NewClient(cfg.API)

	t := tracker.New(cfg, q, adapters.NewRegistry(), auto, b, norm, client, clk)

	// Vendor adapters share the GA call the way browser tags share gtag.
	// That means Google Ads conversions ride the GA transport: without
	// GA credentials the ads adapter stays unavailable.
	gaCall := adapters.NewMeasurementProtocolCall(nil,
		cfg.Adapters.GoogleAnalytics.MeasurementID, cfg.Adapters.GoogleAnalytics.APISecret)
	metaCall := adapters.NewConversionsAPICall(nil,
		cfg.Adapters.MetaPixel.PixelID, cfg.Adapters.MetaPixel.AccessToken)
	if cfg.Adapters.GoogleAds.Enabled && gaCall == nil {
		logger.Warn("google ads enabled without google analytics credentials, conversions will not be sent")
	}
	t.Register(adapters.NewGoogleAnalytics(gaCall))
	t.Register(adapters.NewMetaPixel(metaCall))
	t.Register(adapters.NewGoogleAds(gaCall))

	t.Initialize(ctx)
	defer t.Destroy()

	in := os.Stdin
	if *signalsPath != "-" {
		f, err := os.Open(*signalsPath)
		if err != nil {
			log.Fatalf("open signals: %v", err)
		}
		defer f.Close()
		in = f
	}

	if err := replay(ctx, t, auto, ambient, in); err != nil {
		log.Fatalf("replay: %v", err)
	}

	time.Sleep(*drain)

	stats, err := t.QueueStats(ctx)
	if err != nil {
		log.Printf("queue stats unavailable: %v", err)
		return
	}
	log.Printf("replay complete, %d events still queued", stats.Size)
}

func replay(ctx context.Context, t *tracker.Tracker, auto *autotrack.AutoTrackers, ambient *event.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0

	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var sig signal
		if err := json.Unmarshal(raw, &sig); err != nil {
			logger.Warn("replay: skipping malformed line", "line", line, "error", err)
			continue
		}

		switch sig.Kind {
		case "pageview":
			if sig.Client != nil {
				ambient.SetClient(*sig.Client)
			}
			if sig.Page != nil {
				ambient.SetPage(*sig.Page)
			}
			t.Pageview(ctx, tracker.PageviewOptions{})
		case "navigate":
			// Same process, new logical page: thresholds rearm
			if sig.Page != nil {
				ambient.SetPage(*sig.Page)
			}
			t.Reset(ctx)
			t.Pageview(ctx, tracker.PageviewOptions{})
		case "click":
			auto.HandleClick(ctx, sig.Target)
		case "focus":
			auto.HandleFocusIn(ctx, sig.Form)
		case "submit":
			auto.HandleSubmit(ctx, sig.Form)
		case "scroll":
			auto.HandleScroll(ctx, sig.Top, sig.Viewport, sig.Height)
		case "visibility":
			auto.HandleVisibility(sig.Hidden)
		case "custom":
			t.Track(ctx, sig.Name, tracker.TrackOptions{
				Type:       sig.Type,
				Category:   sig.Category,
				Label:      sig.Label,
				Value:      sig.Value,
				Properties: sig.Properties,
			})
		case "wait":
			time.Sleep(time.Duration(sig.MS) * time.Millisecond)
		default:
			logger.Warn("replay: unknown signal", "line", line, "signal", sig.Kind)
		}
	}
	return scanner.Err()
}
