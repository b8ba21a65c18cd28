// Package main provides the authgate entry point. authgate authenticates
// users against a local database, an LDAP directory, Atlassian Crowd or an
// OAuth2 vendor, issues signed request and refresh tokens, caches verified
// sessions and keeps directory users and groups in sync. The web service is
// built on Fiber and persists users, groups and sessions through gorm.
package main
