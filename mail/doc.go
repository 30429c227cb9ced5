// Package mail provides verification-code delivery for the onboarding engine.
//
// SMTPMailer sends through an SMTP relay. LogMailer writes the code to a
// logger and is meant for local development only.
package mail
