// Package http exposes the reservation engine over a JSON API.
//
// Routes mounted by NewRouter, all under /api:
//   - POST /users, POST /users/login, GET /users/me: signup, login and the
//     current account. Signup requires a prior OTP verification of the email.
//   - GET /users and DELETE /users/{id} are administrator only. GET and PUT
//     /users/{id} and PUT /users/{id}/password allow the account owner or an
//     administrator. The bootstrap administrator answers 403
//     PROTECTED_ACCOUNT to deletion, demotion and email changes.
//   - POST /mail/send-otp, POST /mail/verify-otp: one time codes.
//   - GET /rooms, GET /rooms/{id}; POST, PUT and DELETE are administrator only.
//     List accepts min_capacity and a free_from/free_until window. DELETE
//     answers 409 ROOM_IN_USE with booking_ids while live bookings remain.
//   - GET /bookings, POST /bookings, GET/PUT/DELETE /bookings/{id}: booking
//     admission and owner edits. List accepts room_id, user_id and status.
//   - GET /bookings/pending, PATCH /bookings/{id}/approve, PATCH
//     /bookings/{id}/reject: the administrator approval queue.
//   - GET /bookings/feed: websocket stream of status changes for administrators.
//     Browsers may send the token as the access_token query parameter.
//   - GET /stats/admin: dashboard counters.
//
// Authenticated routes expect "Authorization: Bearer <jwt>". Errors are
// returned as {"error_code","message","errors"}.
package http
