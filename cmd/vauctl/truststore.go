package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"code.vaulink.org/golang/pkg/storage/boltdb"
	"code.vaulink.org/golang/pkg/storage/pgdb"
	"code.vaulink.org/golang/pkg/trust"
)

func newTrustStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "truststore",
		Short: "Build & inspect trusted stores",
	}
	cmd.AddCommand(newCheckCmd(), newRefreshCmd())
	return cmd
}

type checkOptions struct {
	anchor string
	certs  string
	ocsp   string
	maxAge time.Duration
	minIdp int
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Build a trusted store from local list files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := checkLists(opts)
			if nil != err {
				errorColor.Fprintf(cmd.OutOrStdout(), "trust store rejected: %v\n", err)
				return err
			}
			printStore(cmd.OutOrStdout(), store)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.anchor, "anchor", "", "Trust anchor PEM file")
	cmd.Flags().StringVar(&opts.certs, "certs", "", "CertList JSON file")
	cmd.Flags().StringVar(&opts.ocsp, "ocsp", "", "OCSPList JSON file")
	cmd.Flags().DurationVar(&opts.maxAge, "max-age", trust.DefaultMaxAge, "Maximum age of the revocation evidence")
	cmd.Flags().IntVar(&opts.minIdp, "min-idp", 0, "Minimum number of identity provider certificates")
	for _, name := range []string{"anchor", "certs", "ocsp"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func checkLists(opts *checkOptions) (*trust.TrustedStore, error) {
	anchor, err := trust.LoadAnchorFile(opts.anchor)
	if nil != err {
		return nil, err
	}
	srzCerts, err := os.ReadFile(opts.certs)
	if nil != err {
		return nil, wrapError(err, "failed reading %s", opts.certs)
	}
	certs, err := trust.ParseCertList(srzCerts)
	if nil != err {
		return nil, err
	}
	srzOCSP, err := os.ReadFile(opts.ocsp)
	if nil != err {
		return nil, wrapError(err, "failed reading %s", opts.ocsp)
	}
	ocspList, err := trust.ParseOCSPList(srzOCSP)
	if nil != err {
		return nil, err
	}

	policy := trust.DefaultPolicy()
	policy.MinIdpCerts = opts.minIdp

	return trust.Build(certs, ocspList, anchor, policy, opts.maxAge, timeNow())
}

type refreshOptions struct {
	anchor  string
	gateway string
	db      string
	dsn     string
	client  string
	maxAge  time.Duration
	timeout time.Duration
}

func newRefreshCmd() *cobra.Command {
	opts := &refreshOptions{}
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the trusted store from a gateway, persisting its lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			cache, closeStore, err := newCache(ctx, opts)
			if nil != err {
				return err
			}
			defer closeStore()
			store, err := cache.ValidStore(ctx)
			if nil != err {
				errorColor.Fprintf(cmd.OutOrStdout(), "refresh failed: %v\n", err)
				return err
			}
			printStore(cmd.OutOrStdout(), store)
			printCacheStats(cmd.OutOrStdout(), cache.Stats())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.anchor, "anchor", "", "Trust anchor PEM file")
	cmd.Flags().StringVar(&opts.gateway, "gateway", "", "Gateway base URL")
	cmd.Flags().StringVar(&opts.db, "db", "", "bbolt file persisting the lists")
	cmd.Flags().StringVar(&opts.dsn, "dsn", "", "postgres DSN persisting the lists")
	cmd.Flags().StringVar(&opts.client, "client", "vauctl", "client name keying the postgres rows")
	cmd.Flags().DurationVar(&opts.maxAge, "max-age", trust.DefaultMaxAge, "Maximum age of the revocation evidence")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Refresh timeout")
	cmd.MarkFlagRequired("anchor")
	cmd.MarkFlagRequired("gateway")
	return cmd
}

// newCache returns a trust.Cache & the function releasing its list store.
func newCache(ctx context.Context, opts *refreshOptions) (*trust.Cache, func(), error) {
	if "" != opts.dsn && "" != opts.db {
		return nil, nil, newError("--db & --dsn can not be used together")
	}
	anchor, err := trust.LoadAnchorFile(opts.anchor)
	if nil != err {
		return nil, nil, err
	}
	fetcher, err := trust.NewHTTPFetcher(opts.gateway, nil)
	if nil != err {
		return nil, nil, err
	}

	var store trust.ListStore
	closeStore := func() {}
	switch {
	case "" != opts.dsn:
		var pgStore *pgdb.Store
		pgStore, err = pgdb.New(ctx, opts.dsn, opts.client)
		if nil == err {
			store, closeStore = pgStore, pgStore.Close
		}
	case "" != opts.db:
		store, err = boltdb.New(opts.db)
	}
	if nil != err {
		return nil, nil, wrapError(err, "failed opening list store")
	}

	cache, err := trust.NewCache(trust.CacheConfig{
		Anchor:  anchor,
		Policy:  trust.DefaultPolicy(),
		MaxAge:  opts.maxAge,
		Fetcher: fetcher,
		Store:   store,
	})
	if nil != err {
		closeStore()
		return nil, nil, err
	}

	return cache, closeStore, nil
}
