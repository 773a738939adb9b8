// Package hourbank is the prepaid-hour ledger behind BillBuddy's billing
// and scheduling.
//
// Customers buy lots of service hours ahead of time. Each session they
// attend is paid for by debiting hours from those lots, oldest purchase
// first, and recording a completed appointment. A debit either succeeds in
// full or changes nothing.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/grove"
//	    "github.com/xraph/grove/drivers/pgdriver"
//
//	    "github.com/billbuddy/hourbank"
//	    "github.com/billbuddy/hourbank/store/postgres"
//	)
//
//	pgdb := pgdriver.New()
//	if err := pgdb.Open(ctx, databaseURL); err != nil {
//	    log.Fatal(err)
//	}
//	db, err := grove.Open(pgdb)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s := postgres.New(db)
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	bank := hourbank.New(s)
//	if err := bank.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer bank.Stop()
//
// # Debiting hours
//
//	res, err := bank.Debit(ctx, customerID, types.MustParseHours("1.5"), "sessão de terapia")
//	switch {
//	case errors.Is(err, hourbank.ErrInsufficientBalance):
//	    // nothing was written
//	case hourbank.IsRetryable(err):
//	    // conflict persisted past the configured retries
//	}
//
// Debits for the same customer are serialized by the store, so two
// concurrent debits can never spend the same hour. Debits for different
// customers run in parallel.
//
// # Stores
//
// store/memory, store/bolt, store/sqlite, store/postgres and store/mongo
// implement store.Store. All of them pass the conformance suite in
// store/storetest.
//
// # TypeID
//
// All entities use TypeID identifiers:
//
//	cust_01h2xcejqtf2nbrexx3vqjhp41  // Customer ID
//	lot_01h2xcejqtf2nbrexx3vqjhp41   // Credit lot ID
//	appt_01h455vb4pex5vsknk084sn02q  // Appointment ID
//
// TypeIDs are K-sortable, so lots bought at the same instant still drain
// in creation order.
package hourbank
