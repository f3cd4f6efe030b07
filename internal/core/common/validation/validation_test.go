package validation_test

import (
	"strings"
	"testing"

	"github.com/frahmantamala/membership-portal/internal"
	"github.com/frahmantamala/membership-portal/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestValidation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Validation Suite")
}

func fieldErrors(err *internal.AppError) []internal.ValidationError {
	details, ok := err.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())
	return details.Errors
}

var _ = Describe("ValidationBuilder", func() {
	It("should pass when every rule holds", func() {
		v := validation.NewValidator()
		v.Field("name", "alice").Required().MaxLength(10)
		v.Field("page", 2).MinInt(1, internal.ErrCodeInvalidPage)
		Expect(v.Validate()).To(BeNil())
	})

	It("should collect every failing field", func() {
		v := validation.NewValidator()
		v.Field("name", "").Required()
		v.Field("page_size", int64(500)).MaxInt(100, internal.ErrCodeInvalidPage)

		err := v.Validate()
		Expect(err).NotTo(BeNil())
		Expect(err.Code).To(Equal(internal.ErrCodeValidationFailed))

		errs := fieldErrors(err)
		Expect(errs).To(HaveLen(2))
		Expect(errs[0].Field).To(Equal("name"))
		Expect(errs[1].Field).To(Equal("page_size"))
		Expect(errs[1].Code).To(Equal(string(internal.ErrCodeInvalidPage)))
	})

	It("should accept empty or allowed values for OneOf", func() {
		v := validation.NewValidator()
		v.Field("status", "").OneOf(internal.ErrCodeInvalidStatus, "active", "alumni")
		v.Field("other", "alumni").OneOf(internal.ErrCodeInvalidStatus, "active", "alumni")
		Expect(v.Validate()).To(BeNil())

		v = validation.NewValidator()
		v.Field("status", "banned").OneOf(internal.ErrCodeInvalidStatus, "active", "alumni")
		errs := fieldErrors(v.Validate())
		Expect(errs).To(HaveLen(1))
		Expect(errs[0].Message).To(Equal("status must be one of active, alumni"))
		Expect(errs[0].Code).To(Equal(string(internal.ErrCodeInvalidStatus)))
	})
})

var _ = Describe("ValidatePagination", func() {
	It("should accept zero values as defaults", func() {
		Expect(validation.ValidatePagination(0, 0, 100)).To(BeNil())
	})

	It("should reject negative pages and oversized pages", func() {
		errs := fieldErrors(validation.ValidatePagination(-1, 101, 100))
		Expect(errs).To(HaveLen(2))
		Expect(errs[0].Field).To(Equal("page"))
		Expect(errs[1].Field).To(Equal("page_size"))
	})
})

var _ = Describe("ValidateSearch", func() {
	It("should cap the search length", func() {
		Expect(validation.ValidateSearch("smith")).To(BeNil())
		Expect(validation.ValidateSearch(strings.Repeat("x", 101))).NotTo(BeNil())
	})
})
