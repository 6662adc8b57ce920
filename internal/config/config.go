package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time parses duration-valued variables
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. The types reflect how the values are used
// in the application: strings for identifiers and secrets, ints for
// durations and costs.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs and the recovery cookie
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing

    ProcessorBaseURL  string        // payment processor API base URL
    ProcessorClientID string        // platform client id for the OAuth handshake
    ProcessorSecret   string        // secret key for processor API calls
    ProcessorTimeout  time.Duration // per-request timeout on processor calls
    WebhookSecret     string        // webhook signing secret; empty disables verification (dev only)

    PlatformFeePercent uint32        // platform's cut of each checkout, integer percent (0 = none)
    Currency           string        // ISO currency code for checkout sessions
    CheckoutSuccessURL string        // redirect after successful payment
    CheckoutCancelURL  string        // redirect after abandoned payment
    ConnectReturnURL   string        // login/reconnect page after a parked link callback

    LinkAttemptTTL  time.Duration // how long a pending link attempt stays applicable
    LinkCookieTTL   time.Duration // lifetime of the signed recovery cookie
    HeuristicWindow time.Duration // trailing window for the last-resort account match
}

// Load reads configuration values from environment variables and returns
// a Config. Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message. Optional variables
// fall back to sensible defaults.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),

        ProcessorBaseURL:  must("PROCESSOR_BASE_URL"),
        ProcessorClientID: must("PROCESSOR_CLIENT_ID"),
        ProcessorSecret:   must("PROCESSOR_SECRET_KEY"),
        ProcessorTimeout:  optDur("PROCESSOR_TIMEOUT", 10*time.Second),
        WebhookSecret:     os.Getenv("WEBHOOK_SECRET"), // empty = dev-only trust mode

        PlatformFeePercent: uint32(optInt("PLATFORM_FEE_PERCENT", 0)),
        Currency:           opt("CURRENCY", "usd"),
        CheckoutSuccessURL: must("CHECKOUT_SUCCESS_URL"),
        CheckoutCancelURL:  must("CHECKOUT_CANCEL_URL"),
        ConnectReturnURL:   must("CONNECT_RETURN_URL"),

        LinkAttemptTTL:  optDur("LINK_ATTEMPT_TTL", 30*time.Minute),
        LinkCookieTTL:   optDur("LINK_COOKIE_TTL", 15*time.Minute),
        HeuristicWindow: optDur("LINK_HEURISTIC_WINDOW", 10*time.Minute),
    }
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// opt returns the variable's value or def when unset.
func opt(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// optInt returns the variable parsed as int, or def when unset or invalid.
func optInt(key string, def int) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        return def
    }
    return n
}

// optDur returns the variable parsed as a duration, or def when unset
// or invalid.
func optDur(key string, def time.Duration) time.Duration {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    d, err := time.ParseDuration(v)
    if err != nil {
        return def
    }
    return d
}
