package crdb

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id UUID PRIMARY KEY,
		status TEXT NOT NULL CHECK (status IN ('confirmed', 'cancelled')),
		destination_id TEXT NOT NULL DEFAULT '',
		hotel_id TEXT NOT NULL,
		hotel_name TEXT NOT NULL DEFAULT '',
		room_key TEXT NOT NULL DEFAULT '',
		room_types TEXT NOT NULL DEFAULT '',
		customer_id TEXT,
		number_of_nights INT NOT NULL DEFAULT 0,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		num_adults INT NOT NULL DEFAULT 0,
		num_children INT NOT NULL DEFAULT 0,
		msg_to_hotel TEXT NOT NULL DEFAULT '',
		price NUMERIC(12, 2) NOT NULL,
		currency TEXT NOT NULL,
		guest_salutation TEXT NOT NULL DEFAULT '',
		guest_first_name TEXT NOT NULL DEFAULT '',
		guest_last_name TEXT NOT NULL DEFAULT '',
		billing_email TEXT NOT NULL DEFAULT '',
		payment_id TEXT NOT NULL,
		payee_id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_customer_id_idx ON bookings (customer_id)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_status_created_idx ON outbox (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS reconciliations (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		reference TEXT NOT NULL,
		payload JSONB NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'RESOLVED', 'FAILED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (kind, reference)
	)`,
}
