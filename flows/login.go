package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grocery-cli/internal/session"
	"grocery-cli/internal/types"
)

// CodePrompter supplies a one-time verification code from the human.
// The login flow waits on it without a timeout.
type CodePrompter interface {
	PromptCode(ctx context.Context) (string, error)
}

// PromptFunc adapts a function to CodePrompter
type PromptFunc func(ctx context.Context) (string, error)

// PromptCode calls f
func (f PromptFunc) PromptCode(ctx context.Context) (string, error) {
	return f(ctx)
}

// Login signs in through the retailer's login page, answering an MFA challenge
// through prompter when one appears. The session is persisted only on AUTHENTICATED.
func (r *Runner) Login(ctx context.Context, email, password string, prompter CodePrompter) (*session.Data, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%s: %w: email and password are required", r.profile.Provider, types.ErrLoginFailed)
	}

	page, err := r.browser.Launch(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	loginFailed := func(err error) (State, error) {
		return StateLoginFailed, err
	}

	onLoginPage := func(ctx context.Context) (bool, error) {
		current, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		return r.profile.LoginPageMarker != "" && strings.Contains(current, r.profile.LoginPageMarker), nil
	}

	signedIn := func(ctx context.Context) (bool, error) {
		still, err := onLoginPage(ctx)
		if err != nil || still {
			return false, err
		}
		if r.profile.LoggedIn.IsZero() {
			return true, nil
		}
		return page.Exists(ctx, r.profile.LoggedIn)
	}

	m := r.machine(FlowLogin).
		on(StateNavigateLogin, func(ctx context.Context) (State, error) {
			if err := page.Navigate(ctx, r.profile.LoginURL); err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateNavigateLogin, err)
			}
			return StateConsentDismiss, nil
		}).
		on(StateConsentDismiss, func(ctx context.Context) (State, error) {
			if err := r.dismissConsent(ctx, page); err != nil {
				return "", err
			}
			return StateCredentialsFill, nil
		}).
		on(StateCredentialsFill, func(ctx context.Context) (State, error) {
			found, err := r.waitForTarget(ctx, page, r.profile.Email)
			if err == nil && !found {
				err = fmt.Errorf("email field %s not found", r.profile.Email)
			}
			if err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateCredentialsFill, err)
			}
			if err := page.Fill(ctx, r.profile.Email, email); err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateCredentialsFill, err)
			}
			if err := page.Fill(ctx, r.profile.Password, password); err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateCredentialsFill, err)
			}
			return StateSubmit, nil
		}).
		on(StateSubmit, func(ctx context.Context) (State, error) {
			if err := page.Click(ctx, r.profile.Submit); err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateSubmit, err)
			}

			next := StateLoginFailed
			settled := 0
			done, err := waitFor(ctx, r.config.LoginTimeout, r.elementPoll(), func(ctx context.Context) (bool, error) {
				if !r.profile.MFAField.IsZero() {
					mfa, err := page.Exists(ctx, r.profile.MFAField)
					if err != nil {
						return false, err
					}
					if mfa {
						next = StateMFAChallenge
						return true, nil
					}
				}
				if !r.profile.LoginError.IsZero() {
					rejected, err := page.Exists(ctx, r.profile.LoginError)
					if err != nil {
						return false, err
					}
					if rejected {
						next = StateLoginFailed
						return true, nil
					}
				}
				ok, err := signedIn(ctx)
				if err != nil {
					return false, err
				}
				if !ok {
					settled = 0
					return false, nil
				}
				// The MFA field can render after the redirect
				settled++
				if settled < 2 {
					return false, nil
				}
				next = StateAuthenticated
				return true, nil
			})
			if err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateSubmit, err)
			}
			if !done || next == StateLoginFailed {
				r.capture(ctx, page, FlowLogin, StateLoginFailed)
				return loginFailed(fmt.Errorf("%s: %w: no signed-in page reached", r.profile.Provider, types.ErrLoginFailed))
			}
			return next, nil
		}).
		on(StateMFAChallenge, func(ctx context.Context) (State, error) {
			if prompter == nil {
				return loginFailed(fmt.Errorf("%s: %w: verification code required", r.profile.Provider, types.ErrLoginFailed))
			}
			r.logger.Infof("[%s] A verification code was sent, enter it to continue", r.profile.Provider)

			code, err := prompter.PromptCode(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return loginFailed(fmt.Errorf("%s: %w: %v", r.profile.Provider, types.ErrLoginFailed, err))
			}
			code = strings.TrimSpace(code)
			if !mfaCodePattern.MatchString(code) {
				return loginFailed(fmt.Errorf("%s: %w", r.profile.Provider, types.ErrInvalidMFACode))
			}

			if err := page.Fill(ctx, r.profile.MFAField, code); err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateMFAChallenge, err)
			}
			if !r.profile.MFASubmit.IsZero() {
				if err := page.Click(ctx, r.profile.MFASubmit); err != nil {
					return "", r.fail(ctx, page, FlowLogin, StateMFAChallenge, err)
				}
			}

			done, err := waitFor(ctx, r.config.LoginTimeout, r.elementPoll(), func(ctx context.Context) (bool, error) {
				pending, err := page.Exists(ctx, r.profile.MFAField)
				if err != nil || pending {
					return false, err
				}
				return signedIn(ctx)
			})
			if err != nil {
				return "", r.fail(ctx, page, FlowLogin, StateMFAChallenge, err)
			}
			if !done {
				r.capture(ctx, page, FlowLogin, StateLoginFailed)
				return loginFailed(fmt.Errorf("%s: %w: verification code rejected", r.profile.Provider, types.ErrLoginFailed))
			}
			return StateAuthenticated, nil
		}).
		terminalStates(StateAuthenticated, StateLoginFailed)

	final, err := m.run(ctx, StateNavigateLogin)
	if err != nil {
		return nil, err
	}
	if final != StateAuthenticated {
		return nil, fmt.Errorf("%s: %w in state %s", r.profile.Provider, types.ErrLoginFailed, final)
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return nil, r.fail(ctx, page, FlowLogin, StateAuthenticated, err)
	}
	if len(cookies) == 0 {
		return nil, r.fail(ctx, page, FlowLogin, StateAuthenticated, errors.New("no cookies captured after login"))
	}

	now := r.now()
	data := &session.Data{
		Cookies:   cookies,
		ExpiresAt: now.Add(r.config.SessionLifetime),
		LastLogin: now,
	}
	if err := r.sessions.Save(data); err != nil {
		return nil, err
	}

	r.logger.Infof("[%s] Login successful, session saved to %s", r.profile.Provider, r.sessions.Path())
	return data, nil
}
