package db

// Every foreign key cascades so deleting a user removes their connections, chats and messages together.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id BIGSERIAL PRIMARY KEY,
        username VARCHAR(50) UNIQUE NOT NULL,
        email VARCHAR(255) UNIQUE NOT NULL,
        password VARCHAR(255) NOT NULL,
        name VARCHAR(100) NOT NULL DEFAULT '',
        bio TEXT NOT NULL DEFAULT '',
        year INT NOT NULL DEFAULT 0,
        major VARCHAR(100) NOT NULL DEFAULT '',
        avatar_url TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,

	`CREATE TABLE IF NOT EXISTS courses (
        id BIGSERIAL PRIMARY KEY,
        code VARCHAR(20) UNIQUE NOT NULL,
        name VARCHAR(200) NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,

	`CREATE TABLE IF NOT EXISTS enrollments (
        user_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
        course_id BIGINT REFERENCES courses(id) ON DELETE CASCADE,
        enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (user_id, course_id)
    )`,

	`CREATE TABLE IF NOT EXISTS connections (
        id BIGSERIAL PRIMARY KEY,
        requester_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        receiver_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        status VARCHAR(10) NOT NULL CHECK (status IN ('pending', 'accepted')) DEFAULT 'pending',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CHECK (requester_id <> receiver_id)
    )`,

	`CREATE UNIQUE INDEX IF NOT EXISTS connections_pair_idx
        ON connections (LEAST(requester_id, receiver_id), GREATEST(requester_id, receiver_id))`,

	`CREATE TABLE IF NOT EXISTS chats (
        id BIGSERIAL PRIMARY KEY,
        user_low_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        user_high_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CHECK (user_low_id < user_high_id),
        UNIQUE (user_low_id, user_high_id)
    )`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
        id BIGSERIAL PRIMARY KEY,
        chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        content TEXT NOT NULL,
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,

	`CREATE INDEX IF NOT EXISTS chat_messages_chat_idx ON chat_messages (chat_id, created_at, id)`,

	`CREATE TABLE IF NOT EXISTS course_messages (
        id BIGSERIAL PRIMARY KEY,
        course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
        sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        content TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,

	`CREATE INDEX IF NOT EXISTS course_messages_course_idx ON course_messages (course_id, created_at, id)`,
}
