package remote

import (
	"cmp"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/atinyakov/GophFood/internal/models"
)

type ownerBody struct {
	UserID string `json:"userId"`
}

func byOwner(userID string) url.Values {
	return url.Values{"userId": []string{userID}}
}

// AddCartItem adds one unit of itemID to the remote cart of userID.
func (c *Client) AddCartItem(ctx context.Context, itemID, userID string) error {
	_, err := c.do(ctx, "cart_add", http.MethodPost, "cart/"+url.PathEscape(itemID), nil, ownerBody{userID}, nil)
	return err
}

// RemoveCartItem removes one unit of itemID from the remote cart of userID.
func (c *Client) RemoveCartItem(ctx context.Context, itemID, userID string) error {
	_, err := c.do(ctx, "cart_remove", http.MethodDelete, "cart/"+url.PathEscape(itemID), nil, ownerBody{userID}, nil)
	return err
}

// FetchCart returns the remote cart of userID.
func (c *Client) FetchCart(ctx context.Context, userID string) ([]models.RemoteCartLine, error) {
	var lines []models.RemoteCartLine
	if _, err := c.do(ctx, "cart_fetch", http.MethodGet, "cart", byOwner(userID), nil, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// AddBookmark bookmarks restaurantID for userID.
func (c *Client) AddBookmark(ctx context.Context, restaurantID, userID string) error {
	_, err := c.do(ctx, "bookmark_add", http.MethodPost, "bookmark/"+url.PathEscape(restaurantID), nil, ownerBody{userID}, nil)
	return err
}

// RemoveBookmark removes the bookmark of restaurantID for userID.
func (c *Client) RemoveBookmark(ctx context.Context, restaurantID, userID string) error {
	_, err := c.do(ctx, "bookmark_remove", http.MethodDelete, "bookmark/"+url.PathEscape(restaurantID), nil, ownerBody{userID}, nil)
	return err
}

// FetchBookmarks returns the remote bookmarks of userID.
func (c *Client) FetchBookmarks(ctx context.Context, userID string) ([]models.RemoteBookmark, error) {
	var marks []models.RemoteBookmark
	if _, err := c.do(ctx, "bookmark_fetch", http.MethodGet, "bookmark", byOwner(userID), nil, &marks); err != nil {
		return nil, err
	}
	return marks, nil
}

// SaveAddress stores a new delivery address.
func (c *Client) SaveAddress(ctx context.Context, req models.SaveAddressRequest) (models.SaveAddressResult, error) {
	var saved models.DeliveryAddress
	env, err := c.do(ctx, "address_save", http.MethodPost, "address", nil, req, &saved)
	if err != nil {
		return models.SaveAddressResult{}, err
	}
	res := models.SaveAddressResult{Status: true, Message: env.Message}
	if saved.Persisted() || saved.Address != "" {
		res.Data = &saved
	}
	return res, nil
}

// ListAddresses returns the saved addresses of userID.
func (c *Client) ListAddresses(ctx context.Context, userID string) ([]models.DeliveryAddress, error) {
	var list []models.DeliveryAddress
	if _, err := c.do(ctx, "address_list", http.MethodGet, "address", byOwner(userID), nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteAddress removes a saved address.
func (c *Client) DeleteAddress(ctx context.Context, addressID, userID string) error {
	_, err := c.do(ctx, "address_delete", http.MethodDelete, "address/"+url.PathEscape(addressID), nil, ownerBody{userID}, nil)
	return err
}

// CreateOrder places an order and returns it as stored by the service.
func (c *Client) CreateOrder(ctx context.Context, order models.Order) (models.Order, error) {
	created := order
	if _, err := c.do(ctx, "order_create", http.MethodPost, "order", nil, order, &created); err != nil {
		return models.Order{}, err
	}
	return created, nil
}

// ListOrders returns the order history of userID.
func (c *Client) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	if _, err := c.do(ctx, "order_list", http.MethodGet, "order", byOwner(userID), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Login exchanges credentials for an identity carrying the bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (models.AuthIdentity, error) {
	creds := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	var id models.AuthIdentity
	if _, err := c.do(ctx, "login", http.MethodPost, "auth/login", nil, creds, &id); err != nil {
		return models.AuthIdentity{}, err
	}
	if !id.Authenticated() {
		return models.AuthIdentity{}, &Error{StatusCode: http.StatusOK, Message: "Login response carries no identity"}
	}
	if id.Username == "" {
		id.Username = username
	}
	return id, nil
}

// ValidateToken checks the bearer token of the signed-in user. A rejected
// token surfaces as an Error with status 401.
func (c *Client) ValidateToken(ctx context.Context) error {
	_, err := c.do(ctx, "validate_token", http.MethodGet, "auth/validate-token", nil, nil, nil)
	return err
}

// Register creates an unverified account and returns the service message.
func (c *Client) Register(ctx context.Context, reg models.Registration) (string, error) {
	env, err := c.do(ctx, "register", http.MethodPost, "auth/register", nil, reg, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// VerifyOTP confirms the email of an account with the code sent to it.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	body := struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}{email, code}

	env, err := c.do(ctx, "verify_otp", http.MethodPost, "auth/verify-otp", nil, body, nil)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// ResendOTP asks the service to email a new verification code.
func (c *Client) ResendOTP(ctx context.Context, email string) (string, error) {
	body := struct {
		Email string `json:"email"`
	}{email}

	// the outcome may also be nested in data
	var res struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	env, err := c.do(ctx, "resend_otp", http.MethodPost, "auth/resend-otp", nil, body, &res)
	if err != nil {
		return "", err
	}
	if res.Success != nil && !*res.Success {
		return "", &Error{StatusCode: http.StatusOK, Message: cmp.Or(res.Message, "Failed to resend OTP")}
	}
	return cmp.Or(res.Message, env.Message), nil
}

// LookupUser returns the public profile of username.
func (c *Client) LookupUser(ctx context.Context, username string) (models.UserProfile, error) {
	var profile models.UserProfile
	path := "user/lookup/" + url.PathEscape(strings.TrimSpace(username))
	if _, err := c.do(ctx, "user_lookup", http.MethodGet, path, nil, nil, &profile); err != nil {
		return models.UserProfile{}, err
	}
	return profile, nil
}
