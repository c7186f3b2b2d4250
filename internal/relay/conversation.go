package relay

// ConversationKey derives the canonical identifier of the private
// conversation between two participants. The pair is sorted before joining,
// so both sides compute the same key regardless of who initiates.
// A self-conversation or a missing id is ErrInvalidConversation.
func ConversationKey(idA, idB string) (string, error) {
	if idA == "" || idB == "" || idA == idB {
		return "", ErrInvalidConversation
	}
	if idB < idA {
		idA, idB = idB, idA
	}
	return idA + ":" + idB, nil
}
