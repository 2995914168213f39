/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"context"

	"github.com/aws/smithy-go"

	"github.com/suparena/genericstore/errors"
)

// retryableCodes are DynamoDB error codes worth another attempt.
var retryableCodes = map[string]bool{
	"ProvisionedThroughputExceededException":   true,
	"RequestLimitExceeded":                     true,
	"ThrottlingException":                      true,
	"InternalServerError":                      true,
	"ServiceUnavailable":                       true,
	"LimitExceededException":                   true,
	"TransactionConflictException":             true,
	"ItemCollectionSizeLimitExceededException": true,
}

// configurationCodes point at a deployment problem rather than a request.
var configurationCodes = map[string]bool{
	"ResourceNotFoundException":   true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"MissingAuthenticationToken":  true,
	"InvalidSignatureException":   true,
}

// classify maps an SDK error onto the error taxonomy. Connection errors
// are retried by the retry policy; permanent operation errors and
// configuration errors are not.
func classify(op string, err error) *errors.Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Operation(op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case retryableCodes[code]:
			return errors.Connection(op, err)
		case configurationCodes[code]:
			return errors.Configuration(op, err)
		default:
			return errors.Operation(op, err).AsPermanent()
		}
	}

	// Check for AWS SDK retryable errors
	var retryable interface{ RetryableError() bool }
	if errors.As(err, &retryable) && !retryable.RetryableError() {
		return errors.Operation(op, err).AsPermanent()
	}

	// transport failures and anything unrecognized are treated as transient
	return errors.Connection(op, err)
}
