package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create student profiles
-- Version: 001

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    email VARCHAR(254) NOT NULL DEFAULT '',
    first_name VARCHAR(100) NOT NULL DEFAULT '',
    last_name VARCHAR(100) NOT NULL DEFAULT '',
    city VARCHAR(100) NOT NULL DEFAULT '',
    postal_code VARCHAR(10) NOT NULL DEFAULT '',
    need_based BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_students_email ON students(email) WHERE email != '';

-- Sparse grade map: one row per filled subject
CREATE TABLE IF NOT EXISTS student_grades (
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    subject VARCHAR(20) NOT NULL,
    grade NUMERIC(4,2) NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, subject),
    CONSTRAINT valid_grade CHECK (grade >= 0 AND grade <= 20)
);
`

const migration001Down = `
DROP TABLE IF EXISTS student_grades;
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PROGRAMS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create programs with cached admission criteria
-- Version: 002

CREATE TABLE IF NOT EXISTS programs (
    id VARCHAR(64) PRIMARY KEY,
    label TEXT NOT NULL DEFAULT '',
    filiere TEXT NOT NULL DEFAULT '',
    admission_rate NUMERIC(5,2),
    selectivity_marker TEXT NOT NULL DEFAULT '',
    total_seats INTEGER NOT NULL DEFAULT 0,
    reserved_need_seats INTEGER NOT NULL DEFAULT 0,

    -- Criteria derived from the catalog attributes; re-derived only when
    -- criteria_fingerprint no longer matches the attributes.
    criteria JSONB NOT NULL DEFAULT '{}'::jsonb,
    criteria_fingerprint VARCHAR(32) NOT NULL DEFAULT '',

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_seats CHECK (total_seats >= 0),
    CONSTRAINT valid_reserved_seats CHECK (reserved_need_seats >= 0 AND reserved_need_seats <= total_seats)
);
`

const migration002Down = `
DROP TABLE IF EXISTS programs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create applications
-- Version: 003
-- Applications are never deleted: rejected and withdrawn rows stay for audit.

CREATE TABLE IF NOT EXISTS applications (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    program_id VARCHAR(64) NOT NULL REFERENCES programs(id),
    wish_rank INTEGER NOT NULL DEFAULT 1,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    score INTEGER NOT NULL DEFAULT 0,
    weighted_average NUMERIC(5,2) NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    last_run_id UUID,
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE (student_id, program_id),
    CONSTRAINT valid_wish_rank CHECK (wish_rank > 0),
    CONSTRAINT valid_status CHECK (status IN ('pending', 'offered', 'waitlisted', 'withdrawn', 'rejected'))
);

CREATE INDEX IF NOT EXISTS idx_applications_student ON applications(student_id, wish_rank);
CREATE INDEX IF NOT EXISTS idx_applications_active ON applications(submitted_at)
    WHERE status IN ('pending', 'offered', 'waitlisted');
`

const migration003Down = `
DROP TABLE IF EXISTS applications;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE MATCHING RUNS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: Create matching run journal
-- Version: 004

CREATE TABLE IF NOT EXISTS matching_runs (
    id UUID PRIMARY KEY,
    state VARCHAR(30) NOT NULL,
    trigger VARCHAR(20) NOT NULL,
    rounds INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    offered INTEGER NOT NULL DEFAULT 0,
    waitlisted INTEGER NOT NULL DEFAULT 0,
    rejected INTEGER NOT NULL DEFAULT 0,
    auto_withdrawn INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_state CHECK (state IN ('idle', 'running', 'stabilized', 'round_limit_reached', 'failed'))
);

CREATE INDEX IF NOT EXISTS idx_matching_runs_started_at ON matching_runs(started_at DESC);

ALTER TABLE applications
    ADD CONSTRAINT fk_applications_last_run
    FOREIGN KEY (last_run_id) REFERENCES matching_runs(id);
`

const migration004Down = `
ALTER TABLE applications DROP CONSTRAINT IF EXISTS fk_applications_last_run;
DROP TABLE IF EXISTS matching_runs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: MATCHING LOCK
// ══════════════════════════════════════════════════════════════════════════════

const migration005Up = `
-- Migration: Lease row for the matching run lock
-- Version: 005

CREATE TABLE IF NOT EXISTS matching_lock (
    name VARCHAR(32) PRIMARY KEY,
    run_id UUID NOT NULL,
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`

const migration005Down = `
DROP TABLE IF EXISTS matching_lock;
`
