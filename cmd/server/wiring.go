package main

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/lumenforge/lumenforge-web/internal/cfg"
	"github.com/lumenforge/lumenforge-web/internal/health"
	"github.com/lumenforge/lumenforge-web/internal/log"
	"github.com/lumenforge/lumenforge-web/internal/metrics"
	"github.com/lumenforge/lumenforge-web/internal/notify"
	"github.com/lumenforge/lumenforge-web/internal/opshttp"
	"github.com/lumenforge/lumenforge-web/internal/ratelimit"
	"github.com/lumenforge/lumenforge-web/internal/version"
	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

type limiterSet struct {
	form *ratelimit.Limiter
	api  *ratelimit.Limiter
	// bulk has no public route yet, it is reachable through the admin listener
	bulk *ratelimit.Limiter

	// ready is nil for the memory backend
	ready health.Probe
	rdb   *redis.Client
}

func (s *limiterSet) admin() map[string]opshttp.LimiterAdmin {
	return map[string]opshttp.LimiterAdmin{
		s.form.Name(): s.form,
		s.api.Name():  s.api,
		s.bulk.Name(): s.bulk,
	}
}

func (s *limiterSet) Close() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
}

// newLimiters builds one limiter per tier. With the redis backend
// every tier shares one client under its own key prefix, and each still
// answers from its in-process store while redis is unreachable.
func newLimiters(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics, tiers map[string]ratelimit.Tier) (*limiterSet, error) {
	set := &limiterSet{}

	if conf.RateLimitBackend == cfg.BackendRedis {
		set.rdb = redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := set.rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// not fatal, limiters fall back to local counters until it answers
			L.Error(ctx, xerrors.Wrapf(err, "redis ping %s", conf.RedisAddr), "redis unavailable at startup")
		}
		store := ratelimit.NewRedisStore(set.rdb, "lfweb:rl:")
		set.ready = health.Named("redis", health.Cached(2*time.Second, health.Timeout(time.Second, health.CheckFunc(store.Ping))))
	}

	build := func(name string) (*ratelimit.Limiter, error) {
		t, ok := tiers[name]
		if !ok {
			return nil, xerrors.Newf("rate limit tier %q not configured", name)
		}
		TL := L.With("tier", t.Name)
		local := ratelimit.NewMemoryStore(
			ratelimit.WithMaxKeys(conf.RateLimitMaxKeys),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity(t.Name)
				TL.Warn(ctx, "rate limit capacity reached, rejecting new clients until windows expire")
			}),
		)
		opts := []ratelimit.Option{
			ratelimit.WithLogger(TL),
			ratelimit.WithLocalStore(local),
			ratelimit.WithOnCheck(func(allowed bool) { m.ObserveRateLimitCheck(t.Name, allowed) }),
			// once per identifier per window
			ratelimit.WithOnFirstDenied(func(ip string) {
				TL.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnStoreError(func(error) { m.IncRateLimitStoreError(t.Name) }),
		}
		if set.rdb != nil {
			opts = append(opts, ratelimit.WithStore(ratelimit.NewRedisStore(set.rdb, "lfweb:rl:"+t.Name+":")))
		}
		return ratelimit.NewTier(ctx, t, opts...), nil
	}

	var err error
	if set.form, err = build(ratelimit.TierForm.Name); err != nil {
		return nil, err
	}
	if set.api, err = build(ratelimit.TierAPI.Name); err != nil {
		return nil, err
	}
	if set.bulk, err = build(ratelimit.TierBulk.Name); err != nil {
		return nil, err
	}
	return set, nil
}

// newSink assembles the delivery fanout. Submissions are always logged,
// mail and the S3 archive are added when configured.
func newSink(ctx context.Context, L log.Logger, conf cfg.App, awsCfg aws.Config, m *metrics.ServerMetrics, vi version.Info) (*notify.Fanout, error) {
	sinks := []notify.Sink{notify.NewLogSink(L.With("sink", "log"))}

	if conf.SMTPHost != "" {
		ms, err := notify.NewMailSink(notify.MailOptions{
			Host:     conf.SMTPHost,
			Port:     conf.SMTPPort,
			Username: conf.SMTPUsername,
			Password: conf.SMTPPassword,
			From:     conf.MailFrom,
			To:       conf.MailRecipients(),
			XMailer:  version.AppName + " " + vi.String(),
		})
		if err != nil {
			return nil, xerrors.Wrap(err, "mail sink")
		}
		sinks = append(sinks, ms)
	}

	if conf.ArchiveS3Bucket != "" {
		if conf.ArchiveKMSKeyID != "" {
			if err := notify.CheckArchiveKey(ctx, kms.NewFromConfig(awsCfg), conf.ArchiveKMSKeyID); err != nil {
				return nil, xerrors.Wrap(err, "archive kms key")
			}
		}
		as, err := notify.NewS3Sink(s3.NewFromConfig(awsCfg), notify.S3Options{
			Bucket:   conf.ArchiveS3Bucket,
			Prefix:   conf.ArchiveS3Prefix,
			KMSKeyID: conf.ArchiveKMSKeyID,
		})
		if err != nil {
			return nil, xerrors.Wrap(err, "s3 sink")
		}
		sinks = append(sinks, as)
	}

	return notify.NewFanout(sinks, notify.WithOnError(func(sink string, err error) {
		m.IncFormDeliveryError(sink)
	})), nil
}
