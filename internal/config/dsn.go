package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ConnString returns the DSN for the store: DSN verbatim when set, otherwise
// one assembled from the parts in the dialect of Kind.
func (s Store) ConnString() (string, error) {
	if s.DSN != "" {
		return s.DSN, nil
	}
	switch strings.ToLower(s.Kind) {
	case "postgres":
		q := s.query()
		if s.SSLMode != "" {
			q.Set("sslmode", s.SSLMode)
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     s.userinfo(),
			Host:     s.hostPort(5432),
			Path:     "/" + s.Database,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case "mssql":
		q := s.query()
		if s.Database != "" {
			q.Set("database", s.Database)
		}
		u := url.URL{
			Scheme:   "sqlserver",
			User:     s.userinfo(),
			Host:     s.hostPort(1433),
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case "sqlite":
		if s.Database == "" {
			return "", fmt.Errorf("sqlite store needs database (a file path or :memory:)")
		}
		q := s.query()
		if len(q) == 0 {
			return s.Database, nil
		}
		return "file:" + s.Database + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("cannot build a DSN for kind %q; set dsn", s.Kind)
	}
}

func (s Store) userinfo() *url.Userinfo {
	switch {
	case s.User == "":
		return nil
	case s.Password == "":
		return url.User(s.User)
	default:
		return url.UserPassword(s.User, s.Password)
	}
}

func (s Store) hostPort(defPort int) string {
	host := s.Host
	if host == "" {
		host = "localhost"
	}
	port := s.Port
	if port == 0 {
		port = defPort
	}
	return host + ":" + strconv.Itoa(port)
}

func (s Store) query() url.Values {
	q := url.Values{}
	for k, v := range s.Params {
		q.Set(k, fmt.Sprint(v))
	}
	return q
}

// Redacted returns the connection string with any password masked, for logs.
func (s Store) Redacted() string {
	dsn, err := s.ConnString()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
