package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id TEXT NOT NULL UNIQUE,
	order_id TEXT NOT NULL,
	market TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	size REAL NOT NULL,
	fee REAL NOT NULL,
	time TEXT NOT NULL,
	realized_pnl REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	taken_at TEXT NOT NULL,
	trade_count INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time TEXT NOT NULL,
	cash REAL NOT NULL,
	equity REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
